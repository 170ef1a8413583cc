package telemetry

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-uplink/pkg/errors"

	psnet "github.com/shirou/gopsutil/v3/net"
)

const DefaultWirelessStatsPath = "/proc/net/wireless"

// Interface name prefixes used to classify links
var (
	wifiInterfacePrefixes   = []string{"wlan", "wlp", "wl"}
	mobileInterfacePrefixes = []string{"rmnet", "ccmni", "wwan", "usb"}
)

// HostNetworkProvider reads link and traffic state through gopsutil. Cell
// information is not exposed by a generic host and is reported empty.
type HostNetworkProvider struct {
	wirelessStatsPath string
}

func NewHostNetworkProvider() *HostNetworkProvider {
	return &HostNetworkProvider{wirelessStatsPath: DefaultWirelessStatsPath}
}

func (p *HostNetworkProvider) Transport() InternetType {
	interfaces, err := psnet.Interfaces()
	if err != nil {
		return InternetDisconnected
	}

	mobileUp := false
	for _, iface := range interfaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") || len(iface.Addrs) == 0 {
			continue
		}
		switch {
		case hasPrefix(iface.Name, wifiInterfacePrefixes):
			return InternetWifi
		case hasPrefix(iface.Name, mobileInterfacePrefixes):
			mobileUp = true
		}
	}
	if mobileUp {
		return InternetMobile
	}
	return InternetDisconnected
}

func (p *HostNetworkProvider) WifiLevel() int {
	file, err := os.Open(p.wirelessStatsPath)
	if err != nil {
		return 0
	}
	defer file.Close()
	return parseWirelessLevel(bufio.NewScanner(file))
}

func (p *HostNetworkProvider) Cells() []CellInfo {
	return nil
}

func (p *HostNetworkProvider) Counters() (ByteCounters, error) {
	stats, err := psnet.IOCounters(true)
	if err != nil {
		return ByteCounters{}, errors.NewIOError("failed to read interface counters", err)
	}

	var counters ByteCounters
	for _, stat := range stats {
		if stat.Name == "lo" {
			continue
		}
		counters.Sent += stat.BytesSent
		counters.Recv += stat.BytesRecv
		if hasPrefix(stat.Name, mobileInterfacePrefixes) {
			counters.SentMobile += stat.BytesSent
			counters.RecvMobile += stat.BytesRecv
		}
	}
	return counters, nil
}

// parseWirelessLevel reads the link quality column of /proc/net/wireless
// (0..70) and scales it to 0..100.
func parseWirelessLevel(scanner *bufio.Scanner) int {
	const maxQuality = 70
	for scanner.Scan() {
		line := scanner.Text()
		colon := strings.Index(line, ":")
		if colon < 0 || strings.Contains(line, "|") {
			continue
		}
		fields := strings.Fields(line[colon+1:])
		if len(fields) < 2 {
			continue
		}
		quality, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], "."), 64)
		if err != nil {
			continue
		}
		level := int(quality * 100 / maxQuality)
		if level > 100 {
			level = 100
		}
		if level < 0 {
			level = 0
		}
		return level
	}
	return 0
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func hasPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
