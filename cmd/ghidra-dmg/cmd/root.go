/*
Copyright © 2021-2024 packdmg

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/caarlos0/ctrlc"
	"github.com/packdmg/ghidra-dmg/internal/config"
	"github.com/packdmg/ghidra-dmg/internal/packager"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// Verbose boolean flag for verbose logging
	Verbose bool
	// Color boolean flag for colorized output
	Color bool
	// AppVersion stores the plugin's version
	AppVersion string
	// AppBuildTime stores the plugin's build time
	AppBuildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "ghidra-dmg",
	Short:         "Build a macOS .dmg installer for Ghidra",
	SilenceUsage:  true,
	SilenceErrors: true,
	Example: heredoc.Doc(`
		# Build Ghidra.dmg from the latest official release
		$ ghidra-dmg -o ~/Desktop

		# Use a local release zip and enable dark mode
		$ ghidra-dmg -o ~/Desktop -p ~/Downloads/ghidra_11.0.1_PUBLIC_20240130.zip -d

		# Bundle a JDK and install extensions
		$ ghidra-dmg -o ~/Desktop -j ~/jdks/temurin-17.jdk -e https://github.com/cmu-sei/kaiju.git

		# Bundle the Graal VM (with Ghidraal) for scripting language support
		$ ghidra-dmg -o ~/Desktop -g
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		out := viper.GetString("build.out")
		if out == "" {
			out = viper.GetString("build.output-path")
		}

		runtime, err := packager.NewRuntime(viper.GetString("build.jdk"), viper.GetBool("build.graal"))
		if err != nil {
			return err
		}

		pconf := &packager.Config{
			Output:      out,
			Extensions:  viper.GetStringSlice("build.extension"),
			DarkMode:    viper.GetBool("build.dark-mode"),
			SourcePath:  viper.GetString("build.path"),
			Runtime:     runtime,
			Proxy:       conf.Proxy,
			Insecure:    conf.Insecure,
			CacheDir:    conf.Cache,
			GithubToken: conf.GithubToken,
			Gradle:      conf.Gradle,
		}
		if err := pconf.Validate(); err != nil {
			return err
		}

		ctx := context.Background()
		if err := ctrlc.Default.Run(ctx, func() error {
			return packager.New(pconf).Build(ctx)
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("build cancelled")
			}
			return err
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	// Flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ghidra-dmg/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&Color, "color", false, "colorize output")
	rootCmd.PersistentFlags().String("proxy", "", "HTTP/HTTPS proxy")
	rootCmd.PersistentFlags().Bool("insecure", false, "do not verify ssl certs")
	rootCmd.PersistentFlags().String("cache", "", "download cache directory")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	viper.BindPFlag("proxy", rootCmd.PersistentFlags().Lookup("proxy"))
	viper.BindPFlag("insecure", rootCmd.PersistentFlags().Lookup("insecure"))
	viper.BindPFlag("cache", rootCmd.PersistentFlags().Lookup("cache"))
	viper.BindEnv("color", "CLICOLOR")

	rootCmd.Flags().StringP("out", "o", "", "Path in which you want the generated .dmg to be stored")
	rootCmd.Flags().String("output-path", "", "Alias of --out")
	rootCmd.Flags().StringArrayP("extension", "e", nil, "Ghidra extension to install (git URL, zip, or source dir)")
	rootCmd.Flags().BoolP("dark-mode", "d", false, "Enable GUI dark mode")
	rootCmd.Flags().StringP("path", "p", "", "Path to Ghidra zip or install")
	rootCmd.Flags().StringP("jdk", "j", "", "Path to a JDK to bundle")
	rootCmd.Flags().BoolP("graal", "g", false, "Bundle the Graal VM and Ghidraal for Python3 support")
	rootCmd.Flags().MarkHidden("output-path")
	rootCmd.MarkFlagsMutuallyExclusive("jdk", "graal")
	viper.BindPFlag("build.out", rootCmd.Flags().Lookup("out"))
	viper.BindPFlag("build.output-path", rootCmd.Flags().Lookup("output-path"))
	viper.BindPFlag("build.extension", rootCmd.Flags().Lookup("extension"))
	viper.BindPFlag("build.dark-mode", rootCmd.Flags().Lookup("dark-mode"))
	viper.BindPFlag("build.path", rootCmd.Flags().Lookup("path"))
	viper.BindPFlag("build.jdk", rootCmd.Flags().Lookup("jdk"))
	viper.BindPFlag("build.graal", rootCmd.Flags().Lookup("graal"))

	// Settings
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".ghidra-dmg" (without extension).
		viper.AddConfigPath(filepath.Join(home, ".config", "ghidra-dmg"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ghidra_dmg")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
