package telemetry

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-uplink/pkg/errors"
)

const DefaultPowerSupplyRoot = "/sys/class/power_supply"

// SysfsPowerProvider reads the first battery under the power_supply class
type SysfsPowerProvider struct {
	root string
}

func NewSysfsPowerProvider(root string) *SysfsPowerProvider {
	if root == "" {
		root = DefaultPowerSupplyRoot
	}
	return &SysfsPowerProvider{root: root}
}

func (p *SysfsPowerProvider) ReadPower() (PowerStatus, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return PowerStatus{}, errors.NewNotFoundError("power supply class not available", err).WithContext("root", p.root)
	}

	for _, entry := range entries {
		dir := filepath.Join(p.root, entry.Name())
		if readAttribute(dir, "type") != "Battery" {
			continue
		}

		status := PowerStatus{Level: -1, Scale: -1, Status: ChargeStatusUnknown}
		if capacity, err := strconv.Atoi(readAttribute(dir, "capacity")); err == nil {
			status.Level = capacity
			status.Scale = 100
		}
		if s := readAttribute(dir, "status"); s != "" {
			status.Status = ChargeStatus(s)
		}
		return status, nil
	}

	return PowerStatus{}, errors.NewNotFoundError("no battery found", nil).WithContext("root", p.root)
}

func readAttribute(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
