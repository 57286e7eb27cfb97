package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// itoa avoids pulling in fmt.Sprintf for a single integer-to-string
// conversion used when building socket addresses.
func itoa(n int) string {
	return strconv.Itoa(n)
}

// setDeadline arms conn's read deadline, ignoring failures: a deadline that
// cannot be set degrades to a blocking read, which the caller's ctx.Done
// check on the next loop iteration still terminates.
func setDeadline(conn net.PacketConn, d time.Duration) {
	_ = conn.SetReadDeadline(time.Now().Add(d))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
