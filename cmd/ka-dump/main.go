// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ka-dump decodes and displays captured keep-alive message streams.
//
// Usage: ka-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> ka-dump ./capture.raw
//	=== message 0 ===
//	command:    KEEP_ALIVE
//	length:             13
//	crc:       0xf28a717c
//	request:   msg-id=42
//	=== message 1 ===
//	command:    KEEP_ALIVE
//	length:            109
//	crc:       0xdb7a5858
//	response:  msg-id=42 index=0/1
//	timestamp:     1000000
//	max-size:         1000
//	devices:             3
//	  device=0 size=     16 samples=     2
//	[...]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/keepalive/wire"
)

func main() {
	log.SetPrefix("ka-dump: ")
	log.SetFlags(0)

	values := flag.Bool("v", false, "display sample values")
	maxSize := flag.Int("max", 0, "maximum message size (0: no limit)")

	flag.Usage = func() {
		fmt.Printf(`ka-dump decodes and displays captured keep-alive message streams.

Usage: ka-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> ka-dump ./capture.raw
 === message 0 ===
 command:    KEEP_ALIVE
 length:             13
 crc:       0xf28a717c
 request:   msg-id=42
 [...]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input capture file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *maxSize, *values)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, maxSize int, values bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	dec := wire.NewDecoder(bufio.NewReader(f))
	dec.SetMaxMessageSize(maxSize)
	for i := 0; ; i++ {
		msg, err := dec.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not decode message %d: %w", i, err)
		}

		fmt.Fprintf(wbuf, "=== message %d ===\n", i)
		fmt.Fprintf(wbuf, "command:   %11v\n", msg.Header.Command)
		fmt.Fprintf(wbuf, "length:    % 11d\n", msg.Header.Length)
		fmt.Fprintf(wbuf, "crc:       0x%08x\n", msg.CRC)

		if msg.Header.Command != wire.CmdKeepAlive {
			continue
		}

		if len(msg.Body) == wire.RequestSize {
			var req wire.Request
			_ = req.UnmarshalBinary(msg.Body) // size already checked.
			fmt.Fprintf(wbuf, "request:   msg-id=%d\n", req.MsgID)
			continue
		}

		resp, recs, err := wire.ParseResponse(msg.Body)
		if err != nil {
			return fmt.Errorf("could not decode response %d: %w", i, err)
		}
		fmt.Fprintf(wbuf, "response:  msg-id=%d index=%d/%d\n", resp.MsgID, resp.Index, resp.Total)
		fmt.Fprintf(wbuf, "timestamp: % 11d\n", resp.Timestamp)
		fmt.Fprintf(wbuf, "max-size:  % 11d\n", resp.MaxMsgSize)
		fmt.Fprintf(wbuf, "devices:   % 11d\n", resp.Devices)
		for _, rec := range recs {
			fmt.Fprintf(wbuf, "  device=%d size=% 7d samples=% 6d\n",
				rec.DeviceID, len(rec.Data), len(rec.Data)/wire.SampleSize,
			)
			if !values {
				continue
			}
			vs, err := wire.DecodeSamples(rec.Data)
			if err != nil {
				return fmt.Errorf("could not decode samples of device %d: %w", rec.DeviceID, err)
			}
			for _, v := range vs {
				fmt.Fprintf(wbuf, "    %g\n", v)
			}
		}
	}
}
