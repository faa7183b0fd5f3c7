// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Armature-run starts a single action on a robot control server and
// waits for it to finish. It is the smallest useful client of the
// session engine, and doubles as a connectivity check against a real
// server or armature-mock-server:
//
//	armature-run -server 127.0.0.1:7421 -parts arm -action move_home
//
// Action parameters are given as a JSON object and sent to the server
// in the protocol's encoding:
//
//	armature-run -parts arm -action move_to -params '{"x": 0.4, "y": 0.1}'
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/armature-robotics/armature/lib/process"
	"github.com/armature-robotics/armature/lib/version"
	"github.com/armature-robotics/armature/session"
	"github.com/armature-robotics/armature/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		serverAddress string
		partList      string
		actionType    string
		targetPart    string
		paramsJSON    string
		outputField   string
		timeout       time.Duration
		showVersion   bool
	)
	flag.StringVar(&serverAddress, "server", "127.0.0.1:7421", "control server address")
	flag.StringVar(&partList, "parts", "", "comma-separated parts to allocate (required)")
	flag.StringVar(&actionType, "action", "", "action type name to run (required)")
	flag.StringVar(&targetPart, "part", "", "part the action targets (default: first allocated part)")
	flag.StringVar(&paramsJSON, "params", "", "action parameters as a JSON object")
	flag.StringVar(&outputField, "output", "", "streamed-output field to poll after completion")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the action to finish (0 waits forever)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("armature-run", version.Info())
		return nil
	}
	if partList == "" {
		return fmt.Errorf("-parts is required")
	}
	if actionType == "" {
		return fmt.Errorf("-action is required")
	}
	parts := strings.Split(partList, ",")
	if targetPart == "" {
		targetPart = parts[0]
	}

	var parameters any
	if paramsJSON != "" {
		decoded := make(map[string]any)
		if err := json.Unmarshal([]byte(paramsJSON), &decoded); err != nil {
			return fmt.Errorf("parsing -params: %w", err)
		}
		parameters = decoded
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	stub, err := transport.NewConnStub(transport.ConnStubConfig{
		Dial: func(ctx context.Context) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "tcp", serverAddress)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := session.Open(ctx, stub, session.Config{Parts: parts, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if _, err := s.End(); err != nil {
			logger.Error("ending session", "error", err)
		}
	}()
	logger.Info("session open", "session_id", s.ID())

	action := &session.Action{
		ID:         1,
		TypeName:   actionType,
		PartName:   targetPart,
		Parameters: parameters,
	}
	if err := s.AddActions(ctx, action); err != nil {
		return err
	}

	done, err := s.StartActionAndWait(ctx, action, timeout)
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("action %s did not finish within %v", actionType, timeout)
	}
	logger.Info("action finished", "action", actionType)

	if outputField != "" {
		output, err := s.LatestOutput(ctx, action, outputField)
		if err != nil {
			return err
		}
		logger.Info("latest output", "field", outputField,
			"timestamp", output.Timestamp.Format(time.RFC3339Nano), "bytes", len(output.Value))
	}
	return nil
}
