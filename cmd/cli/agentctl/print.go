package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/core-tools/hsu-uplink/pkg/domain"
)

func printStatus(out io.Writer, status *domain.AgentStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SESSION\t%s\n", status.SessionID)
	fmt.Fprintf(w, "AGENT\t%s\n", status.AgentState)
	fmt.Fprintf(w, "UPLINK\t%s\n", status.SupervisorState)
	fmt.Fprintf(w, "HEALTHY\t%t\n", status.Healthy)
	fmt.Fprintf(w, "PID\t%d\n", status.PID)
	fmt.Fprintf(w, "CONFIG\t%s\n", fingerprints(status))
	fmt.Fprintf(w, "RESTARTS\t%d\n", status.Restarts)
	fmt.Fprintf(w, "LAST EXIT\t%d\n", status.LastExitCode)
	if status.LastError != "" {
		fmt.Fprintf(w, "LAST ERROR\t%s\n", status.LastError)
	}
	ping := "unknown"
	if status.PingMs >= 0 {
		ping = fmt.Sprintf("%dms", status.PingMs)
	}
	fmt.Fprintf(w, "NETWORK\t%s, ping %s, loss %d%%\n", status.InternetType, ping, status.PacketLoss)
	w.Flush()
}

func fingerprints(status *domain.AgentStatus) string {
	if status.PendingFingerprint == "" || status.PendingFingerprint == status.AppliedFingerprint {
		return status.AppliedFingerprint
	}
	return fmt.Sprintf("%s (pending %s)", status.AppliedFingerprint, status.PendingFingerprint)
}
