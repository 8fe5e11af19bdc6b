// ws_bridge exposes the shai pipe surface over a websocket. Each connection
// spawns one subprocess (by default `shai -p`); its stdout and stderr stream
// back as framed JSON messages and incoming websocket messages feed stdin.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/exec"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type frame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	addr := flag.String("addr", "localhost:8081", "Listen address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"shai", "-p"}
	}

	http.HandleFunc("/ws", handleWS(args))
	log.Printf("WebSocket bridge running on ws://%s/ws (command: %v)", *addr, args)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("Error getting stderr:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("Error starting agent:", err)
			return
		}
		defer cmd.Process.Kill()

		// Gorilla connections allow one concurrent writer.
		var writeMu sync.Mutex
		send := func(kind, line string) error {
			payload, err := json.Marshal(frame{Type: kind, Data: line})
			if err != nil {
				return err
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		forward := func(kind string, src *bufio.Scanner) {
			for src.Scan() {
				if err := send(kind, src.Text()); err != nil {
					log.Println("WS write error:", err)
					return
				}
			}
		}
		go forward("stdout", bufio.NewScanner(stdout))
		go forward("stderr", bufio.NewScanner(stderr))

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}
