// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/z5labs/tinyhttpd"
	"github.com/z5labs/tinyhttpd/config"
	"github.com/z5labs/tinyhttpd/internal/daemon"

	"github.com/spf13/cobra"
)

// envPrefix selects the environment variables applied on top of every
// config file, e.g. TINYHTTPD_SERVER__PORT=8080.
const envPrefix = "TINYHTTPD_"

func newRootCommand() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "tinyhttpd",
		Short: "Serve static files and CGI programs over HTTP/1.0",
		Long: "tinyhttpd serves files from a document root and runs executables found there " +
			"as CGI programs. Every connection carries exactly one request.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tinyhttpd.Run(cmd.Context(), daemon.Builder(), configSources(cfgPath)...)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "YAML or JSON config file applied over the defaults")
	return cmd
}

func configSources(cfgPath string) []config.Source {
	srcs := []config.Source{daemon.DefaultConfig()}
	if cfgPath != "" {
		abs, err := filepath.Abs(cfgPath)
		if err != nil {
			abs = cfgPath
		}
		f := config.NewFileReader(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
		srcs = append(srcs, fileSource(abs, f))
	}
	return append(srcs, config.FromEnv(envPrefix))
}

// fileSource picks the parser from the file extension. Anything other
// than .json is read as YAML.
func fileSource(path string, r io.Reader) config.Source {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return daemon.JSONConfigSource(r)
	}
	return daemon.ConfigSource(r)
}
