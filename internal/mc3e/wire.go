package mc3e

import (
	"fmt"
	"strconv"
	"strings"

	"scadalink/internal/errs"
)

// MC 3E ASCII frame layout, field widths in ASCII characters. There is no
// TPKT/COTP envelope the way Siemens S7 uses over ISO-on-TCP — MC 3E ASCII
// is a flat ASCII-hex request/response exchanged directly over the TCP
// stream.
const (
	subheaderReq  = "5000" // fixed request subheader
	networkNo     = "00"
	pcNo          = "FF"
	requestDest   = "03FF"
	cpuTimer      = "00"
	monitorTimer  = "0010" // 16 * 250ms = 4s PLC-side monitoring timer

	cmdBatchRead    = "0401"
	subcmdBatchRead = "0000"
)

// familyPad right-pads/truncates a device family code to the 2 ASCII
// characters the wire format reserves for it (e.g. "D " for D, "W " for W).
func familyPad(family string) string {
	if len(family) >= 2 {
		return family[:2]
	}
	return family + " "
}

// encodeBatchReadRequest builds the ASCII-hex body (subheader..subcommand
// and the device-data block) for a word-unit batch read of count registers
// starting at headDevice in the given family.
func encodeBatchReadRequest(family string, headDevice, count int) []byte {
	deviceData := fmt.Sprintf("%06d%s%04X", headDevice, familyPad(family), count)
	dataLen := len(deviceData) + len(monitorTimer) + len(cmdBatchRead) + len(subcmdBatchRead)

	var sb strings.Builder
	sb.WriteString(subheaderReq)
	sb.WriteString(networkNo)
	sb.WriteString(pcNo)
	sb.WriteString(requestDest)
	sb.WriteString(cpuTimer)
	fmt.Fprintf(&sb, "%04X", dataLen)
	sb.WriteString(monitorTimer)
	sb.WriteString(cmdBatchRead)
	sb.WriteString(subcmdBatchRead)
	sb.WriteString(deviceData)
	return []byte(sb.String())
}

// responseHeaderLen is the number of ASCII characters preceding the
// completion code in a response frame: subheader(4) + network(2) + pc(2) +
// dest(4) + timer(2) + dataLen(4) = 18.
const responseHeaderLen = 18

// completionCodeLen is the width of the ASCII-hex completion code.
const completionCodeLen = 4

// decodeBatchReadResponse validates the response header and completion
// code, and returns the raw 4-hex-digit words for count registers.
func decodeBatchReadResponse(resp []byte, count int) ([]uint16, error) {
	s := string(resp)
	if len(s) < responseHeaderLen+completionCodeLen {
		return nil, fmt.Errorf("mc3e: response too short (%d bytes)", len(s))
	}
	code := s[responseHeaderLen : responseHeaderLen+completionCodeLen]
	if code != "0000" {
		return nil, fmt.Errorf("%w: plc completion code %s", errs.ErrProtocol, code)
	}
	body := s[responseHeaderLen+completionCodeLen:]
	words := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		start := i * 4
		if start+4 > len(body) {
			return nil, fmt.Errorf("mc3e: short batch response, expected %d words got %d", count, len(words))
		}
		v, err := strconv.ParseUint(body[start:start+4], 16, 16)
		if err != nil {
			return nil, fmt.Errorf("mc3e: malformed word at index %d: %w", i, err)
		}
		words = append(words, uint16(v))
	}
	return words, nil
}
