// Package usbid looks up human-readable names in the USB ID database.
//
// The database is the usb.ids file maintained by the linux-usb project and
// shipped with most distributions. Besides vendor and product names it
// lists the audio terminal types ("AT" lines) used by audio functions to
// describe their inputs and outputs.
//
// # Usage
//
// Load the database once:
//
//	db := usbid.New()
//	db.Load()
//
// Then look up names:
//
//	vendor := db.Vendor(0x1209)
//	product := db.Product(0x1209, 0xA0D1)
//	terminal := db.Terminal(0x0301) // "Speaker"
//
// Terminal falls back to a built-in table of common terminal types when
// the database is missing or does not list the type. Vendor and Product
// return empty strings for unknown ids.
//
// All methods are safe for concurrent use.
package usbid
