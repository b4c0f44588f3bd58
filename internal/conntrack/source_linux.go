//go:build linux

package conntrack

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/mdlayher/netlink"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

// Netlink SOCK_DIAG constants (§6 Socket-table source, netlink path).
const (
	sockDiagByFamily = 20
	afINET           = 2
	afINET6          = 10
	ipprotoTCP       = 6
	ipprotoUDP       = 17
	allTCPStates     = 0xFFF
)

// inetDiagReqV2 is the wire format of an INET_DIAG dump request.
type inetDiagReqV2 struct {
	Family   uint8
	Protocol uint8
	Ext      uint8
	Pad      uint8
	States   uint32
	ID       inetDiagSockID
}

type inetDiagSockID struct {
	SPort  [2]byte
	DPort  [2]byte
	Src    [16]byte
	Dst    [16]byte
	If     uint32
	Cookie [2]uint32
}

// inetDiagMsg is the response header preceding any attributes.
type inetDiagMsg struct {
	Family  uint8
	State   uint8
	Timer   uint8
	Retrans uint8
	ID      inetDiagSockID
	Expires uint32
	RQueue  uint32
	WQueue  uint32
	UID     uint32
	Inode   uint32
}

var (
	netlinkOnce      sync.Once
	netlinkAvailable bool
	netlinkConn      *netlink.Conn
)

// QuerySocketTable is the platform socket-table source: netlink INET_DIAG
// when the kernel supports it, /proc/net/{tcp,tcp6,udp,udp6} otherwise
// (§4.5 step 1, §6).
func QuerySocketTable() ([]SocketRow, error) {
	netlinkOnce.Do(initNetlink)

	inodeToPID, err := buildInodeToPIDMap()
	if err != nil {
		// Loss of pid attribution degrades rows to HasPID=false rather
		// than failing the whole cycle.
		inodeToPID = nil
	}

	if netlinkAvailable {
		rows, err := queryViaNetlink(inodeToPID)
		if err == nil {
			return rows, nil
		}
		netlinkAvailable = false
	}
	return queryViaProcNet(inodeToPID)
}

func initNetlink() {
	conn, err := netlink.Dial(4, nil) // NETLINK_SOCK_DIAG
	if err != nil {
		return
	}
	if err := probeNetlinkDiag(conn); err != nil {
		conn.Close()
		return
	}
	netlinkConn = conn
	netlinkAvailable = true
}

func probeNetlinkDiag(conn *netlink.Conn) error {
	req := inetDiagReqV2{Family: afINET, Protocol: ipprotoTCP, States: allTCPStates}
	reqBytes := (*[unsafe.Sizeof(req)]byte)(unsafe.Pointer(&req))[:]
	msg := netlink.Message{
		Header: netlink.Header{Type: sockDiagByFamily, Flags: netlink.Request | netlink.Dump},
		Data:   reqBytes,
	}
	_, err := conn.Execute(msg)
	return err
}

func queryViaNetlink(inodeToPID map[uint64]int32) ([]SocketRow, error) {
	var rows []SocketRow

	type query struct {
		family   uint8
		protocol uint8
		isTCP    bool
		is6      bool
	}
	queries := []query{
		{afINET, ipprotoTCP, true, false},
		{afINET6, ipprotoTCP, true, true},
		{afINET, ipprotoUDP, false, false},
		{afINET6, ipprotoUDP, false, true},
	}

	for _, q := range queries {
		req := inetDiagReqV2{Family: q.family, Protocol: q.protocol, States: allTCPStates}
		reqBytes := (*[unsafe.Sizeof(req)]byte)(unsafe.Pointer(&req))[:]
		msg := netlink.Message{
			Header: netlink.Header{Type: sockDiagByFamily, Flags: netlink.Request | netlink.Dump},
			Data:   reqBytes,
		}
		msgs, err := netlinkConn.Execute(msg)
		if err != nil {
			if q.isTCP {
				return nil, fmt.Errorf("query tcp family=%d: %w", q.family, err)
			}
			continue // UDP query failures are non-fatal
		}
		for _, m := range msgs {
			row, ok := parseDiagMsg(m.Data, q.family, q.isTCP, q.is6, inodeToPID)
			if ok {
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

func parseDiagMsg(data []byte, family uint8, isTCP, is6 bool, inodeToPID map[uint64]int32) (SocketRow, bool) {
	var zero SocketRow
	if len(data) < int(unsafe.Sizeof(inetDiagMsg{})) {
		return zero, false
	}
	msg := (*inetDiagMsg)(unsafe.Pointer(&data[0]))

	row := SocketRow{
		State: mapTCPState(isTCP, msg.State),
	}
	row.Protocol = protocolFor(isTCP, is6)

	sport := binary.BigEndian.Uint16(msg.ID.SPort[:])
	dport := binary.BigEndian.Uint16(msg.ID.DPort[:])
	row.LocalPort = sport

	if family == afINET {
		row.LocalAddr = ipv4String(msg.ID.Src[:4])
		dst := msg.ID.Dst[:4]
		if !isZero(dst) {
			row.RemoteAddr = ipv4String(dst)
			row.RemotePort = dport
			row.HasRemote = true
		}
	} else {
		row.LocalAddr = ipv6String(msg.ID.Src[:])
		dst := msg.ID.Dst[:]
		if !isZero(dst) {
			row.RemoteAddr = ipv6String(dst)
			row.RemotePort = dport
			row.HasRemote = true
		}
	}

	if pid, ok := inodeToPID[uint64(msg.Inode)]; ok {
		row.PID = pid
		row.HasPID = true
	}
	return row, true
}

func protocolFor(isTCP, is6 bool) model.Protocol {
	switch {
	case isTCP && !is6:
		return model.ProtoTCP4
	case isTCP && is6:
		return model.ProtoTCP6
	case !isTCP && !is6:
		return model.ProtoUDP4
	default:
		return model.ProtoUDP6
	}
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func ipv4String(b []byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func ipv6String(b []byte) string {
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = fmt.Sprintf("%02x%02x", b[i*2], b[i*2+1])
	}
	return strings.Join(groups, ":")
}

// mapTCPState maps the kernel's TCP state byte (the numbering shared by
// inet_diag and /proc/net) onto model.State for the states this tracker
// distinguishes; any other kernel state maps to StateUnknown. UDP has no
// kernel state concept, so every UDP row is reported as StateEstablished
// here; the tracker derives the listening/established split from whether
// the row has a remote endpoint.
func mapTCPState(isTCP bool, kernelState uint8) model.State {
	if !isTCP {
		return model.StateEstablished
	}
	switch kernelState {
	case 1:
		return model.StateEstablished
	case 10:
		return model.StateListening
	case 8:
		return model.StateCloseWait
	case 4:
		return model.StateFinWait1
	case 5:
		return model.StateFinWait2
	case 11:
		return model.StateClosing
	case 9:
		return model.StateLastAck
	default:
		return model.StateUnknown
	}
}

// queryViaProcNet is the fallback socket-table source when netlink
// INET_DIAG is unavailable (module not loaded, permission denied, etc).
func queryViaProcNet(inodeToPID map[uint64]int32) ([]SocketRow, error) {
	type procFile struct {
		path  string
		isTCP bool
		is6   bool
	}
	files := []procFile{
		{"/proc/net/tcp", true, false},
		{"/proc/net/tcp6", true, true},
		{"/proc/net/udp", false, false},
		{"/proc/net/udp6", false, true},
	}

	var rows []SocketRow
	var firstErr error
	for _, pf := range files {
		parsed, err := parseProcNetFile(pf.path, pf.isTCP, pf.is6, inodeToPID)
		if err != nil {
			if pf.isTCP && firstErr == nil {
				firstErr = err
			}
			continue
		}
		rows = append(rows, parsed...)
	}
	if len(rows) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return rows, nil
}

func parseProcNetFile(path string, isTCP, is6 bool, inodeToPID map[uint64]int32) ([]SocketRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []SocketRow
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, scanner.Err()
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, ok := parseProcNetLine(line, isTCP, is6, inodeToPID)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, scanner.Err()
}

func parseProcNetLine(line string, isTCP, is6 bool, inodeToPID map[uint64]int32) (SocketRow, bool) {
	var zero SocketRow
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return zero, false
	}

	localAddr, localPort, err := parseProcAddr(fields[1], is6)
	if err != nil {
		return zero, false
	}
	remoteAddr, remotePort, err := parseProcAddr(fields[2], is6)
	if err != nil {
		return zero, false
	}
	stateVal, err := strconv.ParseUint(fields[3], 16, 8)
	if err != nil {
		return zero, false
	}
	inode, err := strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return zero, false
	}

	row := SocketRow{
		Protocol:   protocolFor(isTCP, is6),
		LocalAddr:  localAddr,
		LocalPort:  localPort,
		State:      mapTCPState(isTCP, uint8(stateVal)),
	}
	if remoteAddr != "" && remotePort != 0 {
		row.RemoteAddr = remoteAddr
		row.RemotePort = remotePort
		row.HasRemote = true
	}
	if pid, ok := inodeToPID[inode]; ok {
		row.PID = pid
		row.HasPID = true
	}
	return row, true
}

// parseProcAddr decodes a /proc/net "HEXIP:HEXPORT" field. IPv4 addresses
// are 4 little-endian bytes; IPv6 addresses are 4 little-endian uint32
// groups.
func parseProcAddr(s string, is6 bool) (string, uint16, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid proc/net address %q", s)
	}
	port, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return "", 0, err
	}
	ipBytes, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", 0, err
	}

	if !is6 {
		if len(ipBytes) != 4 {
			return "", 0, fmt.Errorf("expected 4 bytes, got %d", len(ipBytes))
		}
		return ipv4String([]byte{ipBytes[3], ipBytes[2], ipBytes[1], ipBytes[0]}), uint16(port), nil
	}
	if len(ipBytes) != 16 {
		return "", 0, fmt.Errorf("expected 16 bytes, got %d", len(ipBytes))
	}
	out := make([]byte, 16)
	for i := 0; i < 4; i++ {
		out[i*4+0] = ipBytes[i*4+3]
		out[i*4+1] = ipBytes[i*4+2]
		out[i*4+2] = ipBytes[i*4+1]
		out[i*4+3] = ipBytes[i*4+0]
	}
	return ipv6String(out), uint16(port), nil
}

// buildInodeToPIDMap scans /proc/<pid>/fd for socket:[N] symlinks, giving
// the inode->pid attribution neither netlink nor /proc/net provides
// directly (§4.5 step 1 "pid attribution").
func buildInodeToPIDMap() (map[uint64]int32, error) {
	dirEntries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]int32)
	for _, de := range dirEntries {
		pid, err := strconv.Atoi(de.Name())
		if err != nil {
			continue
		}
		fdDir := "/proc/" + de.Name() + "/fd"
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // process exited or permission denied; skip
		}
		for _, fd := range fds {
			target, err := os.Readlink(fdDir + "/" + fd.Name())
			if err != nil {
				continue
			}
			if !strings.HasPrefix(target, "socket:[") {
				continue
			}
			inodeStr := strings.TrimSuffix(strings.TrimPrefix(target, "socket:["), "]")
			inode, err := strconv.ParseUint(inodeStr, 10, 64)
			if err != nil {
				continue
			}
			out[inode] = int32(pid)
		}
	}
	return out, nil
}
