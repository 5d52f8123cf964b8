package usbid

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the standard locations of the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// builtinTerminals names the terminal types most audio functions use.
var builtinTerminals = map[uint16]string{
	0x0100: "USB Undefined",
	0x0101: "USB Streaming",
	0x01FF: "USB Vendor Specific",
	0x0200: "Input Undefined",
	0x0201: "Microphone",
	0x0202: "Desktop Microphone",
	0x0203: "Personal Microphone",
	0x0204: "Omni-directional Microphone",
	0x0205: "Microphone Array",
	0x0300: "Output Undefined",
	0x0301: "Speaker",
	0x0302: "Headphones",
	0x0304: "Desktop Speaker",
	0x0305: "Room Speaker",
	0x0306: "Communication Speaker",
	0x0307: "Low Frequency Effects Speaker",
	0x0401: "Handset",
	0x0402: "Headset",
	0x0403: "Speakerphone",
	0x0601: "Analog Connector",
	0x0602: "Digital Audio Interface",
	0x0603: "Line Connector",
	0x0605: "S/PDIF Interface",
}

// Database caches names parsed from the USB ID database.
type Database struct {
	vendors   map[uint16]string // VID -> vendor name
	products  map[uint32]string // (VID<<16)|PID -> product name
	terminals map[uint16]string // terminal type -> name
	loaded    bool
	mu        sync.RWMutex
	paths     []string
}

// New creates a database that searches paths, or DefaultPaths when none
// are given.
func New(paths ...string) *Database {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &Database{
		vendors:   make(map[uint16]string),
		products:  make(map[uint32]string),
		terminals: make(map[uint16]string),
		paths:     paths,
	}
}

// Load parses the first database file found. Later calls do nothing.
// It returns false when no file could be opened.
func (db *Database) Load() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return len(db.vendors)+len(db.terminals) > 0
	}
	// Mark as loaded even if no file is found to prevent repeated searches
	db.loaded = true

	for _, path := range db.paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		db.parse(f)
		return true
	}
	return false
}

// Parse adds the entries of a database read from r.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.loaded = true
	return db.parse(r)
}

func (db *Database) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	var vid uint16
	var inVendor bool

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		// Audio terminal lines: "AT xxxx  Name"
		if rest, ok := strings.CutPrefix(line, "AT "); ok {
			inVendor = false
			if id, name, ok := entry(rest); ok {
				db.terminals[id] = name
			}
			continue
		}

		// Product lines belong to the preceding vendor: "\txxxx  Name"
		if line[0] == '\t' {
			if !inVendor {
				continue
			}
			if pid, name, ok := entry(line[1:]); ok {
				db.products[uint32(vid)<<16|uint32(pid)] = name
			}
			continue
		}

		// Vendor lines: "xxxx  Name". Any other section ends the vendor list.
		id, name, ok := entry(line)
		inVendor = ok
		if ok {
			vid = id
			db.vendors[id] = name
		}
	}
	return scanner.Err()
}

// entry splits "xxxx  Name" into a hex id and a name.
func entry(s string) (uint16, string, bool) {
	if len(s) < 6 || s[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimLeft(s[5:], " ")
	if name == "" {
		return 0, "", false
	}
	return uint16(id), name, true
}

// Vendor returns the vendor name of vid, or an empty string.
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the product name of vid:pid, or an empty string.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Terminal returns the name of an audio terminal type.
func (db *Database) Terminal(terminalType uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if name, ok := db.terminals[terminalType]; ok {
		return name
	}
	return builtinTerminals[terminalType]
}

// IsLoaded reports whether a load was attempted.
func (db *Database) IsLoaded() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.loaded
}

// VendorCount returns the number of vendors in the database.
func (db *Database) VendorCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors)
}

// ProductCount returns the number of products in the database.
func (db *Database) ProductCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.products)
}
