package main

import "net"

// sdnotify sends state to the systemd notify socket, matching
// pkg/atlas/server.go's sdnotify helper.
func sdnotify(socket, state string) (bool, error) {
	if socket == "" {
		return false, nil
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socket, Net: "unixgram"})
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		return false, err
	}
	return true, nil
}
