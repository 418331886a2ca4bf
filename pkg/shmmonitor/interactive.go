package shmmonitor

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

// interactive runs the single-character command loop of Monitor.cxx's
// Interactive(): 'q' quits, 'p' prints active queues, 'x' runs Cleanup
// immediately, 'h' reprints help. The terminal is put into raw mode for
// the duration so commands take effect without waiting on a newline.
func (m *Monitor) interactive() {
	fd := int(os.Stdin.Fd())
	prevState, err := term.MakeRaw(fd)
	if err != nil {
		// Not a real terminal (piped stdin, CI) — fall back to line mode.
		m.interactiveLineMode()
		return
	}
	defer term.Restore(fd, prevState)

	fmt.Print("\r\n")
	m.printHelp()
	fmt.Print("\r\n")
	m.printHeader()

	buf := make([]byte, 1)
	for !m.terminating.Load() {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			continue
		}
		switch buf[0] {
		case 'q':
			fmt.Print("\r\n[q] --> quitting.\r\n")
			m.terminating.Store(true)
			continue
		case 'p':
			fmt.Print("\r\n[p] --> active queues:\r\n")
			m.printQueues()
		case 'x':
			fmt.Print("\r\n[x] --> closing shared memory:\r\n")
			_ = m.Cleanup()
		case 'h':
			fmt.Print("\r\n[h] --> help:\r\n\r\n")
			m.printHelp()
			fmt.Print("\r\n")
		case '\r', '\n':
			fmt.Print("\r\n[\\n] --> invalid input.\r\n")
		default:
			fmt.Printf("\r\n[%c] --> invalid input.\r\n", buf[0])
		}
		m.printHeader()
	}
}

// interactiveLineMode is the non-raw fallback used when stdin is not an
// actual terminal (tests, piped input): commands are newline-delimited.
func (m *Monitor) interactiveLineMode() {
	m.printHelp()
	m.printHeader()
	scanner := bufio.NewScanner(os.Stdin)
	for !m.terminating.Load() && scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case 'q':
			m.terminating.Store(true)
		case 'p':
			m.printQueues()
		case 'x':
			_ = m.Cleanup()
		case 'h':
			m.printHelp()
		default:
			fmt.Printf("[%c] --> invalid input.\n", line[0])
		}
	}
}

func (m *Monitor) printHelp() {
	fmt.Print("[h] help, [p] print queues, [x] close memory, [q] quit\n")
}

func (m *Monitor) printHeader() {
	fmt.Printf("| %18s | %10s | %10s |\r", "session", "devices", "since(ms)")
}

func (m *Monitor) printQueues() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for deviceID, last := range m.deviceHeartbeats {
		fmt.Printf("  %s: last heartbeat %s\n", deviceID, last.Format("15:04:05.000"))
	}
}
