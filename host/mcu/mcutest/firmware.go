package mcutest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// FirmwareHandler handles one command. args holds the encoded arguments;
// the returned payloads are sent back before the ACK.
type FirmwareHandler func(args *[]byte) [][]byte

// firmwareCommand is a command (host to MCU) or, with a nil handler, a
// response (MCU to host).
type firmwareCommand struct {
	id      uint16
	name    string
	format  string
	handler FirmwareHandler
}

// Firmware is the message table and data dictionary of an emulated MCU.
// Ids are handed out in registration order, so identify_response and
// identify must be registered first to get their fixed ids 0 and 1.
type Firmware struct {
	mu            sync.RWMutex
	commands      map[uint16]*firmwareCommand
	nameToID      map[string]uint16
	nextID        uint16
	version       string
	buildVersions string
	constants     map[string]any
	enumerations  map[string][]string
	cached        []byte
}

// NewFirmware returns an empty message table.
func NewFirmware(version, build string) *Firmware {
	return &Firmware{
		commands:      make(map[uint16]*firmwareCommand),
		nameToID:      make(map[string]uint16),
		version:       version,
		buildVersions: build,
		constants:     make(map[string]any),
		enumerations:  make(map[string][]string),
	}
}

// RegisterCommand adds a command and returns its id. Registering a name
// twice returns the first id.
func (f *Firmware) RegisterCommand(name, format string, handler FirmwareHandler) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.nameToID[name]; ok {
		return id
	}
	id := f.nextID
	f.nextID++
	f.commands[id] = &firmwareCommand{id: id, name: name, format: format, handler: handler}
	f.nameToID[name] = id
	f.cached = nil
	return id
}

// RegisterResponse adds a message the MCU sends.
func (f *Firmware) RegisterResponse(name, format string) uint16 {
	return f.RegisterCommand(name, format, nil)
}

// AddConstant publishes a value in the dictionary config section.
func (f *Firmware) AddConstant(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constants[name] = value
	f.cached = nil
}

// AddEnumeration publishes names for the values 0..len(values)-1. Empty
// names are left out.
func (f *Firmware) AddEnumeration(name string, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enumerations[name] = append([]string(nil), values...)
	f.cached = nil
}

// Dispatch runs the handler of a command.
func (f *Firmware) Dispatch(id uint16, args *[]byte) ([][]byte, error) {
	f.mu.RLock()
	cmd, ok := f.commands[id]
	f.mu.RUnlock()
	if !ok || cmd.handler == nil {
		return nil, fmt.Errorf("unknown command id %d", id)
	}
	return cmd.handler(args), nil
}

// Dictionary returns the zlib compressed JSON dictionary.
func (f *Firmware) Dictionary() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached == nil {
		f.cached = f.encode()
	}
	return f.cached
}

// Chunk returns up to count dictionary bytes starting at offset.
func (f *Firmware) Chunk(offset, count uint32) []byte {
	data := f.Dictionary()
	end := min(int(offset)+int(count), len(data))
	start := min(int(offset), end)
	return bytes.Clone(data[start:end])
}

// encode must be called with mu held.
func (f *Firmware) encode() []byte {
	commands := make(map[string]int)
	responses := make(map[string]int)
	for _, cmd := range f.commands {
		key := cmd.name
		if cmd.format != "" {
			key += " " + cmd.format
		}
		if cmd.handler != nil {
			commands[key] = int(cmd.id)
		} else {
			responses[key] = int(cmd.id)
		}
	}

	enums := make(map[string]map[string]int, len(f.enumerations))
	for name, values := range f.enumerations {
		m := make(map[string]int)
		for i, v := range values {
			if v != "" {
				m[v] = i
			}
		}
		enums[name] = m
	}

	doc := map[string]any{
		"version":        f.version,
		"build_versions": f.buildVersions,
		"config":         f.constants,
		"commands":       commands,
		"responses":      responses,
	}
	if len(enums) > 0 {
		doc["enumerations"] = enums
	}

	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// Names lists the registered message names in id order.
func (f *Firmware) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]int, 0, len(f.commands))
	for id := range f.commands {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = f.commands[uint16(id)].name
	}
	return names
}
