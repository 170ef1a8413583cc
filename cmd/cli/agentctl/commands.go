package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/domain"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"

	"github.com/spf13/cobra"
)

const commandTimeout = 15 * time.Second

func newStatusCmd(flags *connectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent and uplink status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			gateway, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			status, err := gateway.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newHealthyCmd(flags *connectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "healthy",
		Short: "Exit with status 0 if the uplink is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			gateway, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			healthy, err := gateway.IsChildHealthy(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), healthy)
			if !healthy {
				os.Exit(2)
			}
			return nil
		},
	}
}

func newStopCmd(flags *connectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the uplink and the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			gateway, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			return gateway.Stop(ctx)
		},
	}
}

func newUpdateCmd(flags *connectionFlags) *cobra.Command {
	var (
		credentialsFile string
		remoteShell     bool
		extraArgs       []string
		pingTarget      string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace the uplink configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			credentials, err := os.ReadFile(credentialsFile)
			if err != nil {
				return fmt.Errorf("failed to read credentials: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			gateway, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			return gateway.UpdateConfiguration(ctx, domain.UplinkSettings{
				Credentials:       credentials,
				EnableRemoteShell: remoteShell,
				ExtraArgs:         extraArgs,
				PingTarget:        pingTarget,
			})
		},
	}
	cmd.Flags().StringVar(&credentialsFile, "credentials-file", "", "device credentials file")
	cmd.Flags().BoolVar(&remoteShell, "remote-shell", uplinkconfig.DefaultEnableRemoteShell, "enable the uplink remote shell")
	cmd.Flags().StringArrayVar(&extraArgs, "extra-arg", uplinkconfig.DefaultExtraArgs(), "extra uplink argument, repeatable")
	cmd.Flags().StringVar(&pingTarget, "ping-target", uplinkconfig.DefaultPingTarget, "host used for latency benchmarks")
	_ = cmd.MarkFlagRequired("credentials-file")
	return cmd
}

func newPushCmd(flags *connectionFlags) *cobra.Command {
	var (
		stream    string
		sequence  int64
		timestamp int64
		fields    []string
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Forward one telemetry record to the uplink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFields(fields)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			gateway, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			return gateway.PushData(ctx, domain.TelemetryRecord{
				Stream:    stream,
				Sequence:  sequence,
				Timestamp: timestamp,
				Fields:    parsed,
			})
		},
	}
	cmd.Flags().StringVar(&stream, "stream", "", "stream name")
	cmd.Flags().Int64Var(&sequence, "sequence", 0, "record sequence number")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix milliseconds, 0 for now")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "key=value, repeatable")
	_ = cmd.MarkFlagRequired("stream")
	return cmd
}

// parseFields turns key=value pairs into typed fields: integers, then
// floats, then true/false, otherwise strings.
func parseFields(pairs []string) ([]domain.TelemetryField, error) {
	fields := make([]domain.TelemetryField, 0, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		fields = append(fields, domain.TelemetryField{Key: key, Value: parseValue(raw)})
	}
	return fields, nil
}

func parseValue(raw string) interface{} {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
