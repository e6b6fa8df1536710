package wal

import "hash/crc32"

// castagnoliTable is the Castagnoli CRC32 polynomial table (hardware
// accelerated on most modern CPUs).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 checksums data.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateCRC32 reports whether data matches the expected checksum. Used
// when an entry body is decoded, to validate its internal BSON framing
// against the CRC32 trailer written with it, independent of the chain's
// own pointer integrity.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
