package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/fairmqlog"
	"github.com/FairRootGroup/fairmq-go/pkg/shmmonitor"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/shmem"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fairmq-shm-monitor",
	Short: "Shared-memory session monitor and cleanup daemon",
	Long: `fairmq-shm-monitor watches a session's control queue for device
heartbeats and reclaims the session's shared-memory segments, region
objects, and queues once heartbeats stop arriving.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().String("session", "default", "session name to monitor")
	rootCmd.Flags().Uint32("shmid", 0, "override the derived SysV IPC key")
	rootCmd.Flags().Bool("cleanup", false, "clean up the session's segments and queues once, then exit")
	rootCmd.Flags().Bool("self-destruct", false, "exit after the first cleanup triggered by a heartbeat timeout")
	rootCmd.Flags().Bool("interactive", false, "run the interactive single-character command console")
	rootCmd.Flags().Int("timeout", 5000, "heartbeat silence threshold in milliseconds before cleanup runs")
	rootCmd.Flags().Bool("daemonize", false, "also clean up when the main segment itself cannot be opened for 2x timeout")
	rootCmd.Flags().Bool("clean-on-exit", false, "run one final cleanup pass when the monitor process exits")
}

func run(cmd *cobra.Command, args []string) error {
	fairmqlog.Init(fairmqlog.Config{Level: fairmqlog.InfoLevel})

	sessionName, _ := cmd.Flags().GetString("session")
	shmid, _ := cmd.Flags().GetUint32("shmid")
	cleanupOnly, _ := cmd.Flags().GetBool("cleanup")
	selfDestruct, _ := cmd.Flags().GetBool("self-destruct")
	interactive, _ := cmd.Flags().GetBool("interactive")
	timeoutMS, _ := cmd.Flags().GetInt("timeout")
	daemonize, _ := cmd.Flags().GetBool("daemonize")
	cleanOnExit, _ := cmd.Flags().GetBool("clean-on-exit")

	session := shmem.NewSession(sessionName)
	if shmid != 0 {
		session.OverrideID(shmid)
	}

	mon, err := shmmonitor.New(shmmonitor.Config{
		Session:      session,
		SelfDestruct: selfDestruct,
		Interactive:  interactive,
		Timeout:      time.Duration(timeoutMS) * time.Millisecond,
		RunAsDaemon:  daemonize,
	})
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	if cleanupOnly {
		fmt.Printf("Cleaning up session %q...\n", sessionName)
		if err := mon.Cleanup(); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Println("Done.")
		return nil
	}

	if cleanOnExit {
		defer func() {
			fmt.Println("\nRunning final cleanup pass...")
			_ = mon.Cleanup()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		mon.Stop()
	}()

	return mon.Run()
}
