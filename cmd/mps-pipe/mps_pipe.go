// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Runs a scripted exchange between two in-memory endpoints: a handshake
// message with deferred length, a change_cipher_spec, then application
// data in a protected epoch. Prints every record crossing the pipe.
package main

import (
	"flag"
	"log"

	"github.com/hrissan/mps/layer2"
	"github.com/hrissan/mps/layer3"
	"github.com/hrissan/mps/mpserrors"
	"github.com/hrissan/mps/protect"
	"github.com/hrissan/mps/record"
	"github.com/hrissan/mps/stream"
)

func newEndpoint(recordSize int, secret string) (*layer2.Mem, *layer3.Layer) {
	p := protect.New()
	p.SetEpoch(1, []byte(secret))
	l2 := layer2.NewMem(layer2.MemConfig{
		RecordSize: recordSize,
		QueueSize:  1024,
		AccSize:    1024,
		Protection: p,
	})
	return l2, layer3.New(l2, layer3.Config{Protocol: layer3.ProtocolTLS})
}

func deliver(from, to *layer2.Mem, dir string) {
	for _, rec := range from.Flushed() {
		log.Printf("mps-pipe: %s record type=%s epoch=%d seq=%d sealed=%v len=%d hex=%x",
			dir, rec.Type, rec.Epoch, rec.Seq, rec.Sealed, len(rec.Payload), rec.Payload)
	}
	from.Deliver(to)
}

func main() {
	recordSize := flag.Int("record-size", 32, "payload capacity of one record")
	flag.Parse()

	secret := "pipe demo secret"
	cl2, client := newEndpoint(*recordSize, secret)
	sl2, server := newEndpoint(*recordSize, secret)

	// handshake message, total length learned only at dispatch
	out := layer3.HandshakeOut{Epoch: 0, Type: 0x01, Len: stream.SizeUnknown}
	if err := client.WriteHandshake(&out); err != nil {
		log.Fatal(err)
	}
	body, err := out.Writer.Get(50)
	if err != nil {
		log.Fatal(err)
	}
	for i := range body {
		body[i] = byte(i)
	}
	if err := out.Writer.Commit(); err != nil {
		log.Fatal(err)
	}
	if err := client.Dispatch(); err != nil {
		log.Fatal(err)
	}

	if err := client.WriteCCS(0); err != nil {
		log.Fatal(err)
	}
	if err := client.Dispatch(); err != nil {
		log.Fatal(err)
	}

	wr, err := client.WriteApp(1)
	if err != nil {
		log.Fatal(err)
	}
	app, err := wr.Get(12)
	if err != nil {
		log.Fatal(err)
	}
	copy(app, "hello, peer!")
	if err := wr.Commit(); err != nil {
		log.Fatal(err)
	}
	if err := client.Dispatch(); err != nil {
		log.Fatal(err)
	}
	if err := client.Flush(); err != nil {
		log.Fatal(err)
	}
	deliver(cl2, sl2, "client->server")

	for {
		typ, err := server.Read()
		if err == mpserrors.ErrRetry {
			continue
		}
		if err == mpserrors.ErrWantRead {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		switch typ {
		case record.TypeHandshake:
			hs, err := server.ReadHandshake()
			if err != nil {
				log.Fatal(err)
			}
			total := 0
			for total < hs.Len {
				buf, err := hs.Reader.GetUpTo(hs.Len - total)
				if err != nil {
					log.Fatal(err)
				}
				total += len(buf)
				if err := hs.Reader.Commit(); err != nil {
					log.Fatal(err)
				}
				if total < hs.Len {
					if err := server.ReadPauseHandshake(); err != nil {
						log.Fatal(err)
					}
					if _, err := server.Read(); err != nil {
						log.Fatal(err)
					}
					if hs, err = server.ReadHandshake(); err != nil {
						log.Fatal(err)
					}
				}
			}
			log.Printf("mps-pipe: server got handshake type=%#x len=%d", hs.Type, hs.Len)
		case record.TypeCCS:
			ccs, err := server.ReadCCS()
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("mps-pipe: server got change_cipher_spec epoch=%d", ccs.Epoch)
		case record.TypeApplicationData:
			appIn, err := server.ReadApp()
			if err != nil {
				log.Fatal(err)
			}
			buf, err := appIn.Reader.GetUpTo(1024)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("mps-pipe: server got app data epoch=%d %q", appIn.Epoch, string(buf))
			if err := appIn.Reader.Commit(); err != nil {
				log.Fatal(err)
			}
		}
		if err := server.ReadConsume(); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("mps-pipe: done")
}
