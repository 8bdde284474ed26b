package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "headlights",
	Short: "headlights writes keyed records to one file per partition, idempotently",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $PWD/headlights.yaml)")
	rootCmd.PersistentFlags().String("base-path", "", "output base path (absolute path or s3://, gs://, az://, ftp:// URI)")
	rootCmd.PersistentFlags().String("filename", "", "output filename within each partition")

	viper.BindPFlag("output.base_path", rootCmd.PersistentFlags().Lookup("base-path"))
	viper.BindPFlag("output.filename", rootCmd.PersistentFlags().Lookup("filename"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(gcCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
