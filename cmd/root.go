package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/praetorian-inc/pimctl/internal/logs"
	"github.com/praetorian-inc/pimctl/internal/message"
)

var (
	cfgFile   string
	verbosity int
	quiet     bool
	noColor   bool
	logFile   string
	closeLog  func() error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "pimctl",
	Short:         "pimctl activates, deactivates, and cleans up Azure PIM role assignments.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("quiet") {
			quiet = true
		}
		if quiet {
			logs.SetQuiet()
			message.SetQuiet(true)
		} else {
			logs.SetVerbosity(verbosity)
		}
		message.SetNoColor(noColor)

		console := logs.ConsoleLogger(noColor)
		if logFile != "" {
			_, closer, err := logs.FileLogger(console, logFile)
			if err != nil {
				return err
			}
			closeLog = closer
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if closeLog != nil {
		_ = closeLog()
	}
	if err != nil {
		message.Critical("%v", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "settings file (default is $HOME/.pimctl.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity, repeatable")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress messages")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append JSON logs to this file")
}

// initConfig reads in the settings file and PIMCTL_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pimctl")
	}

	viper.SetEnvPrefix("PIMCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// intSetting returns a flag value, falling back to the settings file when
// the flag was not given on the command line.
func intSetting(cmd *cobra.Command, name string) int {
	if !cmd.Flags().Changed(name) && viper.IsSet(name) {
		return viper.GetInt(name)
	}
	v, _ := cmd.Flags().GetInt(name)
	return v
}

// durationSetting reads a minutes flag the same way.
func durationSetting(cmd *cobra.Command, name string) time.Duration {
	return time.Duration(intSetting(cmd, name)) * time.Minute
}

// waitSetting returns the wait-poll budget, or nil when no wait was
// requested. A wait of zero seconds is a valid request: the state is
// checked once and a miss reports as timed out.
func waitSetting(cmd *cobra.Command) *time.Duration {
	if !cmd.Flags().Changed("wait") && !viper.IsSet("wait") {
		return nil
	}
	d := time.Duration(intSetting(cmd, "wait")) * time.Second
	return &d
}
