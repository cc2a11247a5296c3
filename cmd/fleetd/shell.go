package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/torqfleet/botfleet/internal/fleet"
)

// runShell implements spec.md §6's REPL surface: status[ bot], stats[ bot],
// sync, pause, resume, help, exit. It blocks until ctx is canceled (by a
// shutdown signal) or the user types exit.
func runShell(ctx context.Context, ctrl *fleet.Controller, logger *log.Logger) {
	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	fmt.Println("fleet shell ready. type 'help' for commands.")
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-input:
			if !ok {
				return
			}
			if handleShellLine(ctrl, logger, line) {
				return
			}
		}
	}
}

// handleShellLine dispatches one shell command line. It returns true when
// the shell should exit.
func handleShellLine(ctrl *fleet.Controller, logger *log.Logger, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, arg := fields[0], ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "help":
		printShellHelp()
	case "status":
		printStatus(ctrl, arg)
	case "stats":
		printStats(ctrl, arg)
	case "sync":
		ctrl.SyncTradesNow()
		fmt.Println("sync triggered")
	case "pause":
		pauseOrResume(ctrl, arg, true)
	case "resume":
		pauseOrResume(ctrl, arg, false)
	case "exit", "quit":
		logger.Println("shell: exit requested")
		return true
	default:
		logger.Printf("shell: unrecognized command %q", cmd)
		fmt.Printf("unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func printShellHelp() {
	fmt.Println(`commands:
  status [bot]   show fleet or single bot status
  stats [bot]    show fleet or single bot trading stats
  sync           trigger an immediate trade sync pass
  pause [bot]    pause all bots, or one bot
  resume [bot]   resume all bots, or one bot
  help           show this message
  exit           stop the fleet and exit`)
}

func printStatus(ctrl *fleet.Controller, botID string) {
	if botID == "" {
		for _, rec := range ctrl.AllBotStatus() {
			fmt.Printf("%-30s %-14s symbol=%-10s alive=%v\n", rec.BotID, rec.Status, rec.Symbol, rec.IsAlive)
		}
		return
	}
	rec, ok := ctrl.BotStatus(botID)
	if !ok {
		fmt.Printf("no such bot %q\n", botID)
		return
	}
	fmt.Printf("%-30s %-14s symbol=%-10s alive=%v\n", rec.BotID, rec.Status, rec.Symbol, rec.IsAlive)
}

func printStats(ctrl *fleet.Controller, botID string) {
	if botID == "" {
		for _, id := range ctrl.ListBots() {
			printOneBotStats(ctrl, id)
		}
		return
	}
	printOneBotStats(ctrl, botID)
}

func printOneBotStats(ctrl *fleet.Controller, botID string) {
	stats, err := ctrl.BotTradingStats(botID)
	if err != nil {
		fmt.Printf("%s: error fetching stats: %v\n", botID, err)
		return
	}
	fmt.Printf("%-30s trades=%d wins=%d losses=%d profit=%.2f\n",
		botID, stats.TotalTrades, stats.Wins, stats.Losses, stats.TotalProfit)
}

func pauseOrResume(ctrl *fleet.Controller, botID string, pause bool) {
	if botID == "" {
		for _, id := range ctrl.ListBots() {
			applyPauseResume(ctrl, id, pause)
		}
		return
	}
	if !applyPauseResume(ctrl, botID, pause) {
		fmt.Printf("no such bot %q\n", botID)
	}
}

func applyPauseResume(ctrl *fleet.Controller, botID string, pause bool) bool {
	if pause {
		return ctrl.PauseBot(botID)
	}
	return ctrl.ResumeBot(botID)
}
