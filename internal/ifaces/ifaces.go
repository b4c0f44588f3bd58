// Package ifaces lists capturable network interfaces and picks a sensible
// default, mirroring the teacher's getUsableInterfaces/getInterfacesByName
// helpers and sstop's DetectDefaultInterface.
package ifaces

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket/pcap"
)

// Interface describes one capturable network interface (§4 "Interface
// Enumerator"): its pcap device name, a human-friendly description and its
// bound addresses.
type Interface struct {
	Name        string
	Description string
	Addresses   []string
}

var skipPrefixes = []string{"docker", "br-", "veth", "virbr", "kube", "flannel", "cni", "tun", "tap", "vbox", "utun", "awdl"}

func isSkippable(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range skipPrefixes {
		if strings.HasPrefix(lower, p) || strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// List returns every interface pcap can open for capture, with the
// description and bound addresses pcap's own device list reports for it.
func List() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	netIfaces, _ := net.Interfaces()
	netByName := make(map[string]net.Interface, len(netIfaces))
	for _, ni := range netIfaces {
		netByName[ni.Name] = ni
	}

	out := make([]Interface, 0, len(devs))
	for _, d := range devs {
		addrs := make([]string, 0, len(d.Addresses))
		for _, a := range d.Addresses {
			if a.IP != nil {
				addrs = append(addrs, a.IP.String())
			}
		}
		out = append(out, Interface{
			Name:        d.Name,
			Description: d.Description,
			Addresses:   addrs,
		})
	}
	return out, nil
}

// Usable filters List's result down to up, non-loopback, non-virtual
// interfaces with at least one address — the "best-effort detection" mode
// the teacher's main.go falls back to when no interface is named.
func Usable() ([]Interface, error) {
	all, err := List()
	if err != nil {
		return nil, err
	}
	netIfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list system interfaces: %w", err)
	}
	up := make(map[string]bool, len(netIfaces))
	for _, ni := range netIfaces {
		if ni.Flags&net.FlagUp != 0 && ni.Flags&net.FlagLoopback == 0 {
			up[ni.Name] = true
		}
	}

	var usable []Interface
	for _, iface := range all {
		if !up[iface.Name] {
			continue
		}
		if isSkippable(iface.Name) {
			continue
		}
		if len(iface.Addresses) == 0 {
			continue
		}
		usable = append(usable, iface)
	}
	return usable, nil
}

// Default picks the interface carrying the default route by opening a
// connected UDP socket to a public address and seeing which local
// interface it binds to (sstop's DetectDefaultInterface trick), falling
// back to the first usable interface.
func Default() (string, error) {
	if name := routedInterface(); name != "" {
		return name, nil
	}
	usable, err := Usable()
	if err != nil {
		return "", err
	}
	if len(usable) == 0 {
		return "", fmt.Errorf("no usable network interfaces found")
	}
	return usable[0].Name, nil
}

func routedInterface() string {
	conn, err := net.Dial("udp4", "8.8.8.8:53")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}

	netIfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range netIfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.Equal(localAddr.IP) {
				return iface.Name
			}
		}
	}
	return ""
}
