package pcap

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/accessguard/pkg/features"
)

type flow struct {
	src, dst string
	port     uint16
	udp      bool
}

func encode(t *testing.T, f flow) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		TTL:     64,
		SrcIP:   net.ParseIP(f.src).To4(),
		DstIP:   net.ParseIP(f.dst).To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var err error
	if f.udp {
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(f.port)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		err = gopacket.SerializeLayers(buf, opts, eth, ip, udp)
	} else {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{SrcPort: 50000, DstPort: layers.TCPPort(f.port), SYN: true, Window: 1024}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
		err = gopacket.SerializeLayers(buf, opts, eth, ip, tcp)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func capture(t *testing.T, flows []flow) *bytes.Buffer {
	t.Helper()

	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, f := range flows {
		data := encode(t, f)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return &out
}

func TestRecords(t *testing.T) {
	flows := []flow{
		{src: "10.0.0.5", dst: "10.0.0.20", port: 5432},
		{src: "10.0.0.5", dst: "10.0.0.21", port: 5432},
		{src: "10.0.0.5", dst: "10.0.0.21", port: 22},
		{src: "10.0.0.5", dst: "10.0.0.21", port: 53, udp: true},
		{src: "203.0.113.9", dst: "10.0.0.20", port: 443},
		{src: "203.0.113.9", dst: "10.0.0.20", port: 443},
	}

	r, err := NewReaderFrom(capture(t, flows))
	require.NoError(t, err)
	defer r.Close()

	records, err := r.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	internal := records[0]
	assert.Equal(t, "10.0.0.5", internal[HostKey])
	assert.Equal(t, CategoryInternal, internal[ZoneKey])
	assert.Equal(t, 4, internal[features.TotalAccessCount])
	assert.Equal(t, 2, internal[features.UniqueTargetsAccessed])
	assert.Equal(t, 3, internal[features.TargetDiversity])
	assert.Equal(t, 2, internal[features.AccessMethodDiversity])
	assert.Equal(t, 2, internal[features.SensitiveDataReach])
	assert.Equal(t, 1, internal[features.RolesAssumed])

	external := records[1]
	assert.Equal(t, "203.0.113.9", external[HostKey])
	assert.Equal(t, CategoryExternal, external[ZoneKey])
	assert.Equal(t, 2, external[features.TotalAccessCount])
	assert.Equal(t, 0, external[features.SensitiveDataReach])

	table, err := features.NewBuilder(features.WithSchema(Schema())).Build(records)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, table.Column(features.PrivilegeLevel))
}

func TestAggregatorIgnoresNonIP(t *testing.T) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))

	a := NewHostAggregator()
	a.Add(gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default))
	assert.Equal(t, 0, a.Len())
	assert.Empty(t, a.Records())
}

func TestNewReaderFromInvalid(t *testing.T) {
	_, err := NewReaderFrom(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)

	_, err = NewReaderFrom(bytes.NewReader([]byte("not a capture file")))
	assert.Error(t, err)
}

func TestRecordsCancelled(t *testing.T) {
	r, err := NewReaderFrom(capture(t, []flow{{src: "10.0.0.1", dst: "10.0.0.2", port: 80}}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Records(ctx)
	// Either the cancellation or the drained capture may win the select.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
