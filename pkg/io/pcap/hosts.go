package pcap

import (
	"net"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/hed1ad/accessguard/pkg/features"
)

// Host categories used for peer grouping.
const (
	CategoryInternal = "internal"
	CategoryExternal = "external"
)

// Record attributes identifying a host.
const (
	HostKey = "host"
	ZoneKey = "zone"
)

// Ports whose services hold sensitive data.
var sensitivePorts = map[uint16]bool{
	445:   true, // smb
	1433:  true, // mssql
	3306:  true, // mysql
	5432:  true, // postgres
	6379:  true, // redis
	9200:  true, // elasticsearch
	27017: true, // mongodb
}

// Ports granting an interactive or administrative session.
var adminPorts = map[uint16]bool{
	22:   true,
	23:   true,
	3389: true,
	5985: true,
	5986: true,
}

type endpoint struct {
	ip   string
	port uint16
}

type hostStats struct {
	packets   int
	targets   map[string]struct{}
	ports     map[uint16]struct{}
	protocols map[layers.IPProtocol]struct{}
	sensitive map[endpoint]struct{}
	admin     map[uint16]struct{}
	internal  bool
}

// HostAggregator accumulates per-source-host access statistics.
type HostAggregator struct {
	hosts map[string]*hostStats
}

// NewHostAggregator creates an empty aggregator.
func NewHostAggregator() *HostAggregator {
	return &HostAggregator{hosts: make(map[string]*hostStats)}
}

// Add accounts a single packet. Packets without an IP layer are ignored.
func (a *HostAggregator) Add(packet gopacket.Packet) {
	var src, dst net.IP
	var proto layers.IPProtocol

	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip := ipLayer.(*layers.IPv4)
		src, dst, proto = ip.SrcIP, ip.DstIP, ip.Protocol
	} else if ipLayer := packet.Layer(layers.LayerTypeIPv6); ipLayer != nil {
		ip := ipLayer.(*layers.IPv6)
		src, dst, proto = ip.SrcIP, ip.DstIP, ip.NextHeader
	} else {
		return
	}

	var port uint16
	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		port = uint16(tcpLayer.(*layers.TCP).DstPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		port = uint16(udpLayer.(*layers.UDP).DstPort)
	}

	key := src.String()
	h, ok := a.hosts[key]
	if !ok {
		h = &hostStats{
			targets:   make(map[string]struct{}),
			ports:     make(map[uint16]struct{}),
			protocols: make(map[layers.IPProtocol]struct{}),
			sensitive: make(map[endpoint]struct{}),
			admin:     make(map[uint16]struct{}),
			internal:  src.IsPrivate() || src.IsLoopback(),
		}
		a.hosts[key] = h
	}

	h.packets++
	h.targets[dst.String()] = struct{}{}
	h.protocols[proto] = struct{}{}
	if port != 0 {
		h.ports[port] = struct{}{}
		if sensitivePorts[port] {
			h.sensitive[endpoint{dst.String(), port}] = struct{}{}
		}
		if adminPorts[port] {
			h.admin[port] = struct{}{}
		}
	}
}

// Len returns the number of hosts seen.
func (a *HostAggregator) Len() int {
	return len(a.hosts)
}

// Records returns one record per host ordered by address.
func (a *HostAggregator) Records() []features.Record {
	keys := make([]string, 0, len(a.hosts))
	for k := range a.hosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]features.Record, 0, len(keys))
	for _, k := range keys {
		h := a.hosts[k]
		category := CategoryExternal
		if h.internal {
			category = CategoryInternal
		}

		records = append(records, features.Record{
			HostKey:                        k,
			ZoneKey:                        category,
			features.TotalAccessCount:      h.packets,
			features.UniqueTargetsAccessed: len(h.targets),
			features.TargetDiversity:       len(h.ports),
			features.AccessMethodDiversity: len(h.protocols),
			features.SensitiveDataReach:    len(h.sensitive),
			features.RolesAssumed:          len(h.admin),
		})
	}
	return records
}

// Schema returns the feature schema matching the records this package
// produces. Internal hosts rank above external ones.
func Schema() features.Schema {
	s := features.DefaultSchema()
	s.EntityKey = HostKey
	s.CategoryKey = ZoneKey
	s.CategoryRanks = map[string]float64{CategoryInternal: 2}
	return s
}
