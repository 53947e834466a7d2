package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reelpost/reelpost/configs"
	"github.com/reelpost/reelpost/relay"
	"github.com/reelpost/reelpost/telegram"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	debug   bool
	logFile string
	envFile string
}

func main() {
	flags := &rootFlags{}
	var closeLog func()

	rootCmd := &cobra.Command{
		Use:     "reelpost",
		Short:   "Scrape a video page and post the video to a Telegram channel",
		Long:    `Resolve the media behind a video page (plain HTTP, TLS-fingerprinted HTTP or a stealth browser), download it, optionally compress it with ffmpeg and post it to a Telegram channel with a user session.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			closeLog, err = setupLogging(flags.debug, flags.logFile)
			return err
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Load environment variables from this file if it exists")

	// Add subcommands
	rootCmd.AddCommand(newSessionCmd(flags))
	rootCmd.AddCommand(newUploadCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newVersionCmd())

	err := rootCmd.Execute()
	if err != nil {
		logrus.Errorf("Command execution failed: %v", err)
	}
	if closeLog != nil {
		closeLog()
	}
	if err != nil {
		os.Exit(1)
	}
}

// loadEnv reads the environment and applies the --headless override when given.
func loadEnv(flags *rootFlags, cmd *cobra.Command, headless bool) (*configs.Env, error) {
	env, err := configs.LoadEnv(flags.envFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("headless") {
		env.Headless = headless
	}
	configs.InitHeadless(env.Headless)
	logrus.Infof("Browser headless mode: %v", env.Headless)
	return env, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newSessionCmd creates the session command
func newSessionCmd(flags *rootFlags) *cobra.Command {
	var phone string
	var output string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Log in to Telegram and print a session string",
		Long:  `Log in interactively with phone number, login code and 2FA password, then print the session string to store as the STRING_SESSION secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := configs.LoadEnv(flags.envFile)
			if err != nil {
				return err
			}
			if err := env.RequireTelegram(); err != nil {
				return err
			}
			if output == "" {
				output = env.SessionFile
			}

			ctx, cancel := signalContext()
			defer cancel()

			session, err := telegram.GenerateSession(ctx, telegram.Config{
				AppID:   env.APIID,
				AppHash: env.APIHash,
				Logger:  newTelegramLogger(flags.debug),
			}, telegram.NewPrompt(os.Stdin, os.Stdout, phone))
			if err != nil {
				return err
			}

			if err := configs.WriteSession(output, session); err != nil {
				return err
			}

			fmt.Println("\n========================================")
			fmt.Println("  Session String")
			fmt.Println("========================================")
			fmt.Println(session)
			fmt.Println("========================================")
			fmt.Printf("\nSaved to: %s\n", output)
			fmt.Println("Store it as the STRING_SESSION secret. Anyone holding it can use the account.")
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in international format (prompted when empty)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write the session to (default SESSION_FILE)")

	return cmd
}

// newUploadCmd creates the upload command
func newUploadCmd(flags *rootFlags) *cobra.Command {
	var jobPath string
	var overrides configs.Job
	var headless bool

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Scrape one video page and post the video",
		Long:  `Run the whole pipeline once: resolve the media URL, download, remux or compress, upload to the channel and clean up. The job comes from --job, from flags, or from VIDEO_URL and related variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(flags, cmd, headless)
			if err != nil {
				return err
			}

			job, err := loadJob(jobPath, &overrides, cmd)
			if err != nil {
				return err
			}

			pipeline, err := relay.Build(env, newTelegramLogger(flags.debug))
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			result, err := pipeline.Run(ctx, job)
			if err != nil {
				return err
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "Path to a JSON job file")
	cmd.Flags().StringVar(&overrides.URL, "url", "", "Video page URL")
	cmd.Flags().StringVar(&overrides.Title, "title", "", "Video title (defaults to the page title)")
	cmd.Flags().StringVar(&overrides.Caption, "caption", "", "Post caption (defaults to the title)")
	cmd.Flags().StringVar(&overrides.FetchMode, "mode", "", "Fetch mode: auto, http, stealth or browser")
	cmd.Flags().BoolVar(&overrides.Compress, "compress", false, "Re-encode with libx264 before uploading")
	cmd.Flags().IntVar(&overrides.MaxHeight, "max-height", 0, "Downscale to this height when compressing")
	cmd.Flags().BoolVar(&overrides.KeepFiles, "keep", false, "Keep downloaded files")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run browser in headless mode")

	return cmd
}

// newServeCmd creates the serve command
func newServeCmd(flags *rootFlags) *cobra.Command {
	var port string
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the job dispatch server",
		Long:  `Start an HTTP server that runs one upload job per POST /api/v1/jobs request, one at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(flags, cmd, headless)
			if err != nil {
				return err
			}

			pipeline, err := relay.Build(env, newTelegramLogger(flags.debug))
			if err != nil {
				return err
			}
			if env.ServerToken == "" {
				logrus.Warn("SERVER_TOKEN is not set, the job endpoint is open")
			}

			logrus.Infof("Starting server on port %s", port)
			server := NewAppServer(NewJobService(relay.NewRunner(pipeline)), env.ServerToken)
			return server.Start(":" + port)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run browser in headless mode")

	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reelpost version %s\n", version)
		},
	}
}

func printResult(result *relay.Result) {
	fmt.Println("\n========================================")
	fmt.Println("  Upload Results")
	fmt.Println("========================================")
	fmt.Printf("Job ID:     %s\n", result.ID)
	fmt.Printf("Title:      %s\n", result.Title)
	fmt.Printf("Media URL:  %s\n", result.MediaURL)
	fmt.Printf("Size:       %s\n", humanBytes(result.SizeBytes))
	fmt.Printf("Video:      %dx%d, %.0f seconds\n", result.Width, result.Height, result.DurationSeconds)
	fmt.Printf("Compressed: %v\n", result.Compressed)
	fmt.Printf("Duration:   %d seconds\n", result.ElapsedSeconds)
	fmt.Println("========================================")

	if result.ArchiveURL != "" {
		fmt.Printf("\nArchived to: %s\n", result.ArchiveURL)
	}
}
