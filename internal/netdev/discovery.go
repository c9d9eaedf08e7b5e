// Package netdev lists the host's network interfaces from sysfs.
package netdev

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const netClassPath = "class/net"

// Info describes one network interface.
type Info struct {
	Name      string `json:"name"`
	MAC       string `json:"mac,omitempty"`
	OperState string `json:"operstate"`
	MTU       int    `json:"mtu,omitempty"`
	SpeedMbps *int   `json:"speed_mbps"`
	Virtual   bool   `json:"virtual"`
	Driver    string `json:"driver,omitempty"`
	PCI       string `json:"pci,omitempty"`
	PCIID     string `json:"pci_id,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Discover enumerates interfaces under <root>/class/net, sorted by name.
func Discover(root string, logger *slog.Logger) ([]Info, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sysRoot, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer sysRoot.Close()

	entries, err := fs.ReadDir(sysRoot.FS(), netClassPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("net class path missing", "path", filepath.Join(root, netClassPath))
			return nil, nil
		}
		return nil, fmt.Errorf("read net class dir: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		ifRoot, err := sysRoot.OpenRoot(filepath.Join(netClassPath, name))
		if err != nil {
			logger.Warn("failed to open interface root", "iface", name, "err", err)
			continue
		}

		info := loadInterfaceInfo(name, ifRoot)
		if err := ifRoot.Close(); err != nil {
			logger.Debug("failed to close interface root", "iface", name, "err", err)
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

func loadInterfaceInfo(name string, ifRoot *os.Root) Info {
	info := Info{Name: name}

	info.MAC, _ = readTrim(ifRoot, "address")
	info.OperState, _ = readTrim(ifRoot, "operstate")
	if info.OperState == "" {
		info.OperState = "unknown"
	}
	if value, err := readTrim(ifRoot, "mtu"); err == nil {
		if mtu, err := strconv.Atoi(value); err == nil {
			info.MTU = mtu
		}
	}
	// Reading speed fails or yields -1 while the link is down.
	if value, err := readTrim(ifRoot, "speed"); err == nil {
		if speed, err := strconv.Atoi(value); err == nil && speed > 0 {
			info.SpeedMbps = &speed
		}
	}

	deviceRoot, err := ifRoot.OpenRoot("device")
	if err != nil {
		info.Virtual = true
		return info
	}
	defer deviceRoot.Close()

	var subVendor, subDevice string
	if data, err := deviceRoot.ReadFile("uevent"); err == nil {
		text := string(data)
		info.Driver = parseKeyValue(text, "DRIVER")
		info.PCI = parseKeyValue(text, "PCI_SLOT_NAME")
		info.PCIID = parseKeyValue(text, "PCI_ID")
		if subsys := parseKeyValue(text, "PCI_SUBSYS_ID"); subsys != "" {
			subVendor, subDevice = splitPCIIdentifier(subsys)
		}
	}

	if info.PCIID == "" {
		if vendor, err := readTrim(deviceRoot, "vendor"); err == nil {
			if device, err := readTrim(deviceRoot, "device"); err == nil {
				info.PCIID = formatHexPair(vendor, device)
			}
		}
	}
	if subVendor == "" {
		subVendor, _ = readTrim(deviceRoot, "subsystem_vendor")
	}
	if subDevice == "" {
		subDevice, _ = readTrim(deviceRoot, "subsystem_device")
	}

	if info.PCIID != "" {
		vendorID, deviceID := splitPCIIdentifier(info.PCIID)
		info.Vendor, info.Model = lookupAdapter(vendorID, deviceID, subVendor, subDevice)
	}

	return info
}

func parseKeyValue(data, key string) string {
	prefix := key + "="
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

func readTrim(root *os.Root, name string) (string, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func formatHexPair(vendor, device string) string {
	return strings.TrimPrefix(vendor, "0x") + ":" + strings.TrimPrefix(device, "0x")
}
