//go:build integration && !windows

package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/core-tools/hsu-uplink/pkg/logging"
	"github.com/core-tools/hsu-uplink/pkg/logrotate"
	"github.com/core-tools/hsu-uplink/pkg/materialize"
	"github.com/core-tools/hsu-uplink/pkg/processfile"
	"github.com/core-tools/hsu-uplink/pkg/processstate"
	"github.com/core-tools/hsu-uplink/pkg/supervisor"
	"github.com/core-tools/hsu-uplink/pkg/telemetry"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"
)

const echoUplink = `#!/bin/sh
echo "uplink started $*"
echo "uplink diagnostics" >&2
while read line; do echo "got $line"; done
`

const stubbornUplink = `#!/bin/sh
trap '' TERM
echo "uplink started"
while true; do sleep 0.1; done
`

var _ = Describe("Supervisor", func() {
	var (
		root            string
		layout          *processfile.Layout
		output          *logrotate.Store
		sup             *supervisor.Supervisor
		sendPowerStatus func(sequence int64)
	)

	newSupervisor := func(script string) {
		asset := filepath.Join(root, "asset-uplink")
		Expect(os.WriteFile(asset, []byte(script), 0755)).To(Succeed())

		logger := logging.Nop()
		layout = processfile.NewLayout(processfile.LayoutConfig{RootDirectory: root}, logger)
		output = logrotate.NewStore(logrotate.StoreConfig{Path: layout.OutputLogPath(), MaxFileCount: 8}, logger)

		var err error
		channel := telemetry.NewChannel(func(cause error) { sup.MarkUnhealthy(cause) }, logger)
		table := processstate.NewHostProcessTable()
		sup, err = supervisor.NewSupervisor(supervisor.Options{
			ExecutablePath:  layout.ExecutablePath(),
			ConfigPath:      layout.ConfigPath(),
			CredentialsPath: layout.CredentialsPath(),
			PollInterval:    100 * time.Millisecond,
		}, supervisor.Dependencies{
			Materializer: materialize.NewMaterializer(asset, layout, logger),
			Spawner:      supervisor.NewProcessSpawner(logger),
			Resolver:     table,
			Killer:       table,
			Output:       output,
			Stdin:        channel,
			PIDFile:      layout,
		}, logger)
		Expect(err).NotTo(HaveOccurred())

		DeferCleanup(func() {
			sup.Shutdown(context.Background())
		})

		sendPowerStatus = func(sequence int64) {
			channel.Send(telemetry.Payload{
				Stream:    telemetry.StreamPowerStatus,
				Sequence:  sequence,
				Timestamp: 1000,
				Fields: []telemetry.Field{
					{Key: "battery_level", Value: 87},
					{Key: "charging", Value: false},
				},
			})
		}
	}

	outputLog := func() string {
		data, _ := os.ReadFile(layout.OutputLogPath())
		return string(data)
	}

	startChild := func() int {
		Expect(sup.UpdateConfiguration(uplinkconfig.New([]byte(`{"device_id":"1"}`), true, []string{"-v"}, ""))).To(Succeed())
		sup.Tick()
		Expect(sup.Snapshot().State).To(Equal(supervisor.StateStarting))
		sup.Tick()
		Expect(sup.Snapshot().State).To(Equal(supervisor.StateRunning))
		return sup.Snapshot().PID
	}

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	Context("with a well-behaved uplink", func() {
		BeforeEach(func() {
			newSupervisor(echoUplink)
		})

		It("materializes, launches and captures output", func() {
			pid := startChild()
			Expect(pid).To(BeNumerically(">", 0))

			Expect(layout.ConfigPath()).To(BeAnExistingFile())
			Expect(layout.CredentialsPath()).To(BeAnExistingFile())

			recorded, err := layout.ReadPIDFile()
			Expect(err).NotTo(HaveOccurred())
			Expect(recorded).To(Equal(pid))

			Eventually(outputLog, 3*time.Second).Should(ContainSubstring("uplink started -a " + layout.CredentialsPath()))
			Eventually(outputLog, 3*time.Second).Should(ContainSubstring("uplink diagnostics"))
		})

		It("delivers telemetry records to the child's stdin", func() {
			startChild()
			sendPowerStatus(1)

			Eventually(outputLog, 3*time.Second).Should(ContainSubstring(
				`got {"stream":"power_status","sequence":1,"timestamp":1000,"battery_level":87,"charging":false}`))
		})

		It("restarts a child that died on its own", func() {
			first := startChild()
			proc, err := os.FindProcess(first)
			Expect(err).NotTo(HaveOccurred())
			Expect(proc.Kill()).To(Succeed())

			Eventually(func() supervisor.State {
				sup.Tick()
				return sup.Snapshot().State
			}, 3*time.Second, 50*time.Millisecond).Should(Equal(supervisor.StateRunning))

			snapshot := sup.Snapshot()
			Expect(snapshot.PID).NotTo(Equal(first))
			Expect(snapshot.Restarts).To(Equal(int64(1)))
		})

		It("stops gracefully on shutdown", func() {
			startChild()
			Expect(sup.Shutdown(context.Background())).To(Succeed())

			Expect(sup.Snapshot().State).To(Equal(supervisor.StateStopped))
			Expect(sup.IsChildHealthy()).To(BeFalse())
			Expect(layout.PIDFilePath()).NotTo(BeAnExistingFile())
		})
	})

	Context("with an uplink that ignores termination", func() {
		BeforeEach(func() {
			newSupervisor(stubbornUplink)
		})

		It("escalates to a forced kill after the graceful window", func() {
			pid := startChild()

			started := time.Now()
			Expect(sup.Shutdown(context.Background())).To(Succeed())
			Expect(time.Since(started)).To(BeNumerically(">=", 600*time.Millisecond))

			Expect(sup.Snapshot().State).To(Equal(supervisor.StateStopped))
			running, _ := processstate.IsProcessRunning(pid)
			Expect(running).To(BeFalse())
		})
	})
})
