// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"fmt"
	"net"
	"time"

	"github.com/dkish/approxconsensus/codec"
	"github.com/dkish/approxconsensus/consensus"
	"github.com/dkish/approxconsensus/errs"
)

// ErrControllerTimeout is returned by CL.Recv when no command arrived
// before the deadline. Callers should re-check RS.IsFinished and retry.
var ErrControllerTimeout = errs.ErrControllerTimeout

// Report is what a replica sends the controller: its consensus snapshot
// joined with its own fault state and identity. The spec.md §3 union
// ("CA snapshot ∪ RS snapshot ∪ {id, time_generated}") is flattened here
// into distinct JSON fields rather than embedding both structs, since both
// carry an IsDone flag that would otherwise collide under the same wire key.
type Report struct {
	consensus.State
	IsDown        bool  `json:"is_down"`
	IsByzantine   bool  `json:"is_byzantine"`
	TimeGenerated int64 `json:"time_generated"`
	Ready         bool  `json:"ready,omitempty"`
}

// newReport joins a consensus snapshot with the replica's fault state into
// an outbound report. is_done in the embedded consensus.State reflects
// CA.IsDone(); forceDone additionally latches it for the final signal the
// receiver sends once the algorithm terminates.
func newReport(cs consensus.State, rs State, forceDone bool) Report {
	cs.IsDone = cs.IsDone || forceDone
	return Report{
		State:       cs,
		IsDown:      rs.IsDown,
		IsByzantine: rs.IsByzantine,
	}
}

// CL is the bidirectional boundary with the controller: a TCP connection
// carrying inbound fault commands, and a UDP socket carrying outbound state
// reports. Each half is owned by exactly one goroutine, so neither needs
// its own lock.
type CL struct {
	controllerAddr string
	reportAddr     string
	conn           net.Conn
	reportConn     net.Conn
}

// Connect dials the controller's TCP command port, retrying on failure
// indefinitely on a fixed 500ms backoff until the controller accepts, the
// way the original simulator does. It returns an error only if the UDP
// report socket cannot be set up.
func Connect(controllerAddr, reportAddr string) (*CL, error) {
	cl := &CL{controllerAddr: controllerAddr, reportAddr: reportAddr}
	for {
		conn, err := net.DialTimeout("tcp", controllerAddr, 2*time.Second)
		if err == nil {
			cl.conn = conn
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	reportConn, err := net.Dial("udp", reportAddr)
	if err != nil {
		cl.conn.Close()
		return nil, fmt.Errorf("replica: dial report addr %s: %w", reportAddr, err)
	}
	cl.reportConn = reportConn
	return cl, nil
}

// Recv blocks up to timeout for one length-framed command from the
// controller. It returns ErrControllerTimeout on deadline expiry and
// codec.ErrDataNotPresent on a blank or malformed frame.
func (cl *CL) Recv(timeout time.Duration) (Command, error) {
	var cmd Command
	if err := cl.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return cmd, err
	}
	buf := make([]byte, codec.FrameSize)
	n, err := cl.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return cmd, ErrControllerTimeout
		}
		return cmd, fmt.Errorf("replica: controller connection lost: %w", err)
	}
	if err := codec.DecodeFrame(buf[:n], &cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// Send fire-and-forgets a state report to the controller's UDP report port.
func (cl *CL) Send(report Report) error {
	frame, err := codec.EncodeFrame(report)
	if err != nil {
		return err
	}
	_, err = cl.reportConn.Write(frame)
	return err
}

// Close releases both the command connection and the report socket.
func (cl *CL) Close() error {
	var errs []error
	if cl.conn != nil {
		if err := cl.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if cl.reportConn != nil {
		if err := cl.reportConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
