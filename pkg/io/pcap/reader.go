// Package pcap derives per-host access records from packet captures. Each
// source address becomes an entity whose features summarize the services it
// reached during the capture.
package pcap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/hed1ad/accessguard/pkg/features"
)

// packetReader is satisfied by both the pcap and pcapng readers.
type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader reads packets from a capture file and aggregates them by host.
type Reader struct {
	file       *os.File
	source     packetReader
	aggregator *HostAggregator
}

// NewFileReader opens a pcap or pcapng file.
func NewFileReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := NewReaderFrom(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// NewReaderFrom reads a capture from any stream, detecting pcapng by its
// section header magic.
func NewReaderFrom(src io.Reader) (*Reader, error) {
	br := bufio.NewReader(src)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("pcap: reading magic: %w", err)
	}

	var source packetReader
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		source, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		source, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, err
	}

	return &Reader{
		source:     source,
		aggregator: NewHostAggregator(),
	}, nil
}

// Records consumes the whole capture and returns one record per source host.
func (r *Reader) Records(ctx context.Context) ([]features.Record, error) {
	if r.source == nil {
		return nil, errors.New("reader not initialized")
	}

	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())
	packets := packetSource.Packets()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case packet, ok := <-packets:
			if !ok {
				return r.aggregator.Records(), nil
			}
			r.aggregator.Add(packet)
		}
	}
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
