package transport

import (
	"net"

	"github.com/sirupsen/logrus"
)

// FindAvailablePort asks the kernel for a free TCP port on the loopback
// interface. The port is released before returning, so another process may
// still claim it first.
func FindAvailablePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, &OpError{Op: "listen", Addr: "127.0.0.1:0", Err: err}
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	logrus.WithFields(logrus.Fields{
		"function": "FindAvailablePort",
		"package":  "transport",
		"port":     port,
	}).Debug("Allocated port")
	return port, nil
}
