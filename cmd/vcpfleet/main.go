// Command vcpfleet boots a fleet of virtual OCPP 1.6 charge points and
// drives them from an interactive console, mirroring the single-charger
// REPL this simulator's fleet manager generalizes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carprofile"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/connector"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/fleet"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcplog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to fleet configuration file")
	carProfilesPath := flag.String("car-profiles", "", "Path to a YAML file of additional car profile fixtures")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := vcplog.New(vcplog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	catalog := carprofile.NewCatalog()
	if *carProfilesPath != "" {
		if err := catalog.LoadFile(*carProfilesPath); err != nil {
			log.Warn().Err(err).Msg("failed to load car profile fixtures, continuing with built-ins")
		}
	}

	mgr := fleet.NewManager(cfg, catalog, log)
	if err := mgr.LoadRoster(); err != nil {
		log.Warn().Err(err).Msg("failed to load roster")
	}

	log.Info().Str("ws_url", cfg.WSURL).Int("chargers", len(mgr.List())).Msg("fleet ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go interactiveLoop(mgr, log)

	fmt.Println("VCP fleet simulator ready. Type 'help' for commands.")
	<-sigCh
	fmt.Println("shutting down...")
	mgr.DisconnectAll()
}

func interactiveLoop(mgr *fleet.Manager, log zerolog.Logger) {
	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			continue
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help":
			printHelp()

		case "list":
			for _, s := range mgr.ListChargers() {
				fmt.Printf("%s connected=%v connectors=%d\n", s.CpId, s.Connected, len(s.Connectors))
			}

		case "add":
			if len(args) < 4 {
				fmt.Println("usage: add <cpId> <vendor> <model> <numConnectors> [phases]")
				continue
			}
			n, _ := strconv.Atoi(args[3])
			phases := 1
			if len(args) > 4 {
				phases, _ = strconv.Atoi(args[4])
			}
			cfg := config.ChargerConfig{CpId: args[0], Vendor: args[1], Model: args[2], NumConnectors: n, Phases: phases}
			if err := mgr.AddCharger(cfg); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("added", args[0])

		case "generate":
			if len(args) < 3 {
				fmt.Println("usage: generate <prefix> <count> <numConnectors> [phases]")
				continue
			}
			count, _ := strconv.Atoi(args[1])
			n, _ := strconv.Atoi(args[2])
			phases := 1
			if len(args) > 3 {
				phases, _ = strconv.Atoi(args[3])
			}
			base := config.ChargerConfig{Vendor: "VCPFleet", Model: "Simulator", NumConnectors: n, Phases: phases}
			ids, err := mgr.GenerateChargers(args[0], count, base)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			fmt.Printf("generated %d chargers\n", len(ids))

		case "remove":
			if len(args) < 1 {
				fmt.Println("usage: remove <cpId>")
				continue
			}
			if err := mgr.RemoveCharger(args[0]); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("removed", args[0])

		case "connect":
			if len(args) < 1 {
				fmt.Println("usage: connect <cpId>")
				continue
			}
			if err := mgr.Connect(ctx, args[0]); err != nil {
				log.Warn().Err(err).Str("cp_id", args[0]).Msg("connect failed")
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("connected", args[0])

		case "connectall":
			results := mgr.ConnectAll(ctx)
			success, failed := 0, 0
			for _, err := range results {
				if err == nil {
					success++
				} else {
					failed++
				}
			}
			fmt.Printf("connected %d, failed %d\n", success, failed)

		case "disconnect":
			if len(args) < 1 {
				fmt.Println("usage: disconnect <cpId>")
				continue
			}
			if err := mgr.Disconnect(args[0]); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("disconnected", args[0])

		case "plugin":
			if len(args) < 4 {
				fmt.Println("usage: plugin <cpId> <connectorId> <profileId> <initialSoc>")
				continue
			}
			connID, _ := strconv.Atoi(args[1])
			soc, _ := strconv.ParseFloat(args[3], 64)
			if err := mgr.PlugInCar(args[0], connID, args[2], soc); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("car plugged in")

		case "unplug":
			if len(args) < 2 {
				fmt.Println("usage: unplug <cpId> <connectorId>")
				continue
			}
			connID, _ := strconv.Atoi(args[1])
			if err := mgr.UnplugCar(args[0], connID); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("car unplugged")

		case "start":
			if len(args) < 3 {
				fmt.Println("usage: start <cpId> <connectorId> <idTag>")
				continue
			}
			connID, _ := strconv.Atoi(args[1])
			txCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := mgr.StartTransaction(txCtx, args[0], connID, args[2])
			cancel()
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("transaction started")

		case "stop":
			if len(args) < 2 {
				fmt.Println("usage: stop <cpId> <connectorId> [reason]")
				continue
			}
			connID, _ := strconv.Atoi(args[1])
			reason := "Local"
			if len(args) > 2 {
				reason = args[2]
			}
			txCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := mgr.StopTransaction(txCtx, args[0], connID, reason)
			cancel()
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("transaction stopped")

		case "setcurrent":
			if len(args) < 3 {
				fmt.Println("usage: setcurrent <cpId> <connectorId> <amps>")
				continue
			}
			connID, _ := strconv.Atoi(args[1])
			amps, _ := strconv.ParseFloat(args[2], 64)
			if err := mgr.SetChargingCurrent(args[0], connID, amps); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("current set")

		case "setstatus":
			if len(args) < 3 {
				fmt.Println("usage: setstatus <cpId> <connectorId> <status>")
				continue
			}
			connID, _ := strconv.Atoi(args[1])
			status := connector.Status(args[2])
			if err := mgr.SetConnectorStatus(args[0], connID, status, ""); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("status set")

		case "carprofiles":
			for _, p := range mgr.ListCarProfiles() {
				fmt.Printf("%s: %s (%.0fkWh, %.0fA, %d phases)\n", p.ID, p.Name, p.BatteryCapacityKwh, p.MaxAcCurrentA, p.Phases)
			}

		case "quit", "exit":
			os.Exit(0)

		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  list                                         list every roster entry
  add <cpId> <vendor> <model> <n> [phases]     add a charger to the roster
  generate <prefix> <count> <n> [phases]       bulk-add chargers
  remove <cpId>                                remove a charger
  connect <cpId>                               dial the CSMS for one charger
  connectall                                   dial the CSMS for every disconnected charger
  disconnect <cpId>                            close one charger's session
  plugin <cpId> <connId> <profileId> <soc>     attach a simulated EV
  unplug <cpId> <connId>                       detach the simulated EV
  start <cpId> <connId> <idTag>                begin a transaction
  stop <cpId> <connId> [reason]                end the open transaction
  setcurrent <cpId> <connId> <amps>            set offered current
  setstatus <cpId> <connId> <status>           force a connector's status
  carprofiles                                  list the car profile catalog
  quit                                         exit`)
}
