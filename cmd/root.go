/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ghostzones",
	Short: "Ghost zone exchange for structured multi-domain meshes",
	Long: `Builds ghost zone halos for structured domains spread over ranks: discovers
the domain topology, partitions domains to ranks, exchanges meshes, fields and
materials, and verifies every entry that arrived against its owner.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ghostzones.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log exchange and partition progress")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "receive timeout for in-process ranks")
	rootCmd.PersistentFlags().Bool("validate-order", false, "ship and check the sender of every halo slot")
	for _, name := range []string{"verbose", "timeout", "validate-order"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		// Search config in home directory with name ".ghostzones" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".ghostzones")
	}
	viper.SetEnvPrefix("ghostzones")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() *log.Logger {
	if !viper.GetBool("verbose") {
		return nil
	}
	return log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
}
