// Package mcu talks to a Klipper firmware MCU and uses it as an I2C
// bridge.
package mcu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"

	"ledtools/host/serial"
	"ledtools/logging"
	"ledtools/protocol"
)

// Fixed ids of the only messages usable before the dictionary is known.
const (
	identifyCmdID      = 1
	identifyResponseID = 0
	identifyChunk      = 40
	maxDictionary      = 1 << 20
)

var (
	ErrNoDictionary      = errors.New("dictionary not loaded")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrAlreadyConfigured = errors.New("mcu already configured with a different setup")
)

// MCU is a connection to a Klipper microcontroller.
type MCU struct {
	transport *protocol.HostTransport
	logger    logging.Logger

	// mu pairs each request with its response.
	mu sync.Mutex

	dictionary     *Dictionary
	dictionaryData []byte
	commands       map[string]uint16
	responses      map[string]uint16
}

// Dictionary is the data dictionary an MCU reports on identify.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]any            `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]any `json:"enumerations,omitempty"`
}

// Connect opens the serial port described by cfg.
func Connect(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// New wraps an already open link.
func New(port io.ReadWriteCloser) *MCU {
	return &MCU{
		transport: protocol.NewHostTransport(port),
		logger:    logging.GetLogger("mcu"),
	}
}

// Close shuts down the transport and the port.
func (m *MCU) Close() error {
	return m.transport.Close()
}

// RetrieveDictionary downloads, inflates and indexes the dictionary.
func (m *MCU) RetrieveDictionary(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Retrieving dictionary")

	var raw bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := m.identify(ctx, offset)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		raw.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
		if raw.Len() > maxDictionary {
			return fmt.Errorf("dictionary exceeds %d bytes", maxDictionary)
		}
	}

	data, err := inflate(raw.Bytes())
	if err != nil {
		return fmt.Errorf("inflate dictionary: %w", err)
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}

	m.dictionaryData = data
	m.dictionary = dict
	m.commands = indexByName(dict.Commands)
	m.responses = indexByName(dict.Responses)

	m.logger.Info("Dictionary loaded",
		"version", dict.Version,
		"commands", len(m.commands),
		"responses", len(m.responses),
		"compressed", raw.Len(),
		"size", len(data))
	return nil
}

func (m *MCU) identify(ctx context.Context, offset uint32) ([]byte, error) {
	err := m.transport.SendCommand(ctx, identifyCmdID, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQUint(out, identifyChunk)
	})
	if err != nil {
		return nil, err
	}

	args, err := m.transport.ReceiveCommand(ctx, identifyResponseID)
	if err != nil {
		return nil, err
	}
	respOffset, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return nil, err
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}
	return protocol.DecodeVLQBytes(&args)
}

// inflate returns data unchanged unless it carries a zlib header.
func inflate(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxDictionary))
}

// indexByName keys messages by their first word; dictionary keys also
// carry the argument format.
func indexByName(messages map[string]int) map[string]uint16 {
	index := make(map[string]uint16, len(messages))
	for format, id := range messages {
		name, _, _ := strings.Cut(format, " ")
		index[name] = uint16(id)
	}
	return index
}

// Dictionary returns the parsed dictionary, or nil before retrieval.
func (m *MCU) Dictionary() *Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionary
}

// RawDictionary returns the inflated dictionary JSON as received.
func (m *MCU) RawDictionary() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionaryData
}

// CommandID looks a command up by name.
func (m *MCU) CommandID(name string) (uint16, error) {
	return lookup(m.commands, name)
}

// ResponseID looks a response up by name.
func (m *MCU) ResponseID(name string) (uint16, error) {
	return lookup(m.responses, name)
}

func lookup(index map[string]uint16, name string) (uint16, error) {
	if index == nil {
		return 0, ErrNoDictionary
	}
	id, ok := index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return id, nil
}

// enumeration resolves a named value such as an i2c bus. Numeric names
// pass through.
func (m *MCU) enumeration(enum, name string) (uint32, error) {
	if m.dictionary != nil {
		if v, ok := m.dictionary.Enumerations[enum][name]; ok {
			if f, ok := v.(float64); ok {
				return uint32(f), nil
			}
			return 0, fmt.Errorf("enumeration %s: unsupported value for %s", enum, name)
		}
	}
	n, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("enumeration %s has no value %q", enum, name)
	}
	return uint32(n), nil
}

// SendCommand sends a command by name and waits for its ACK.
func (m *MCU) SendCommand(ctx context.Context, name string, args func(output protocol.OutputBuffer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(ctx, name, args)
}

func (m *MCU) send(ctx context.Context, name string, args func(output protocol.OutputBuffer)) error {
	id, err := m.CommandID(name)
	if err != nil {
		return err
	}
	if err := m.transport.SendCommand(ctx, id, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// query sends a command and returns the arguments of the named response.
func (m *MCU) query(ctx context.Context, name string, args func(output protocol.OutputBuffer), response string) ([]byte, error) {
	respID, err := m.ResponseID(response)
	if err != nil {
		return nil, err
	}
	if err := m.send(ctx, name, args); err != nil {
		return nil, err
	}
	payload, err := m.transport.ReceiveCommand(ctx, respID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", response, err)
	}
	return payload, nil
}

// WriteSummary prints the dictionary header and message names.
func (m *MCU) WriteSummary(w io.Writer) {
	dict := m.Dictionary()
	if dict == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}

	fmt.Fprintf(w, "Version: %s\n", dict.Version)
	fmt.Fprintf(w, "Build: %s\n", dict.BuildVersions)

	keys := make([]string, 0, len(dict.Config))
	for k := range dict.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "Config:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %v\n", k, dict.Config[k])
	}

	fmt.Fprintf(w, "Commands (%d):\n", len(dict.Commands))
	writeMessages(w, dict.Commands)
	fmt.Fprintf(w, "Responses (%d):\n", len(dict.Responses))
	writeMessages(w, dict.Responses)
}

func writeMessages(w io.Writer, messages map[string]int) {
	formats := make([]string, 0, len(messages))
	for format := range messages {
		formats = append(formats, format)
	}
	sort.Slice(formats, func(i, j int) bool {
		return messages[formats[i]] < messages[formats[j]]
	})
	for _, format := range formats {
		fmt.Fprintf(w, "  [%d] %s\n", messages[format], format)
	}
}

// configCRC identifies a set of config commands so a reconnect can tell
// whether the MCU already runs them.
func configCRC(lines []string) uint32 {
	return crc32.ChecksumIEEE([]byte(strings.Join(lines, "\n")))
}
