// Package apikey generates and verifies long-lived API keys.
//
// Keys look like lsc_live_<random> or lsc_test_<random>. The random segment carries 256 bits
// of entropy, so a single unsalted SHA-256 is enough for storage. The public prefix lets a
// store find the candidate row without ever holding the raw key.
package apikey
