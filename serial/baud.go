package serial

import (
	"sort"
	"strconv"
	"strings"
)

// Standard rates accepted on attach. 74880 is the ESP8266/ESP32 boot ROM rate.
var validBaudRates = map[int]bool{
	300:    true,
	600:    true,
	1200:   true,
	2400:   true,
	4800:   true,
	9600:   true,
	14400:  true,
	19200:  true,
	38400:  true,
	57600:  true,
	74880:  true,
	115200: true,
	230400: true,
	250000: true,
	460800: true,
	500000: true,
	921600: true,
}

// ValidBaudRate reports whether rate is a supported standard rate
func ValidBaudRate(rate int) bool {
	return validBaudRates[rate]
}

// BaudRateList returns the supported rates as a comma separated list
func BaudRateList() string {
	rates := make([]int, 0, len(validBaudRates))
	for r := range validBaudRates {
		rates = append(rates, r)
	}
	sort.Ints(rates)

	parts := make([]string, len(rates))
	for i, r := range rates {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ", ")
}
