package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	Name   string
	NodeID string
	Actor  string
	Limit  int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	nodeID := fs.String("node", "", "node_id filter (cycles, accesses)")
	actor := fs.String("actor", "", "actor filter (accesses)")
	_ = fs.Parse(args)

	q := dbQuery{Name: "snapshots", NodeID: strings.TrimSpace(*nodeID), Actor: strings.TrimSpace(*actor), Limit: *limit}
	if fs.NArg() > 0 {
		q.Name = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := runQuery(db, q)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

type snapshotRow struct {
	Tick         int64  `json:"tick"`
	Path         string `json:"path"`
	Seed         int64  `json:"seed"`
	Nodes        int    `json:"nodes"`
	RunningNodes int    `json:"running_nodes"`
}

type cycleRow struct {
	Tick     int64           `json:"tick"`
	NodeID   string          `json:"node_id"`
	Phase    string          `json:"phase"`
	Input    string          `json:"input"`
	Duration int             `json:"duration,omitempty"`
	Rewards  json.RawMessage `json:"rewards,omitempty"`
	Inserts  int             `json:"inserts,omitempty"`
	Dropped  int             `json:"dropped,omitempty"`
	NoRecipe bool            `json:"no_recipe,omitempty"`
}

type accessRow struct {
	Tick     int64  `json:"tick"`
	Actor    string `json:"actor"`
	Action   string `json:"action"`
	NodeID   string `json:"node_id"`
	Side     string `json:"side,omitempty"`
	Slot     int    `json:"slot"`
	Item     string `json:"item,omitempty"`
	Count    int    `json:"count"`
	Simulate bool   `json:"simulate,omitempty"`
	Code     string `json:"code,omitempty"`
}

type nodeRow struct {
	NodeID             string          `json:"node_id"`
	Pos                [3]int          `json:"pos"`
	Tick               int64           `json:"tick"`
	CycleTimeRemaining int             `json:"cycle_time_remaining"`
	CycleDuration      int             `json:"cycle_duration"`
	CurrentInput       string          `json:"current_input,omitempty"`
	Input              json.RawMessage `json:"input"`
	Output             json.RawMessage `json:"output"`
}

func runQuery(db *sql.DB, q dbQuery) ([]any, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	var out []any
	switch q.Name {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,nodes,running_nodes FROM snapshots ORDER BY tick DESC LIMIT ?`, q.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r snapshotRow
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Nodes, &r.RunningNodes); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "cycles":
		rows, err := db.Query(`SELECT tick,node_id,phase,input,duration,rewards_json,inserts,dropped,no_recipe FROM cycles
			WHERE (?='' OR node_id=?) ORDER BY tick DESC, seq DESC LIMIT ?`, q.NodeID, q.NodeID, q.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r cycleRow
			var rewards string
			var noRecipe int
			if err := rows.Scan(&r.Tick, &r.NodeID, &r.Phase, &r.Input, &r.Duration, &rewards, &r.Inserts, &r.Dropped, &noRecipe); err != nil {
				return nil, err
			}
			if rewards != "" && rewards != "null" {
				r.Rewards = json.RawMessage(rewards)
			}
			r.NoRecipe = noRecipe != 0
			out = append(out, r)
		}
		return out, rows.Err()

	case "accesses":
		rows, err := db.Query(`SELECT tick,actor,action,node_id,COALESCE(side,''),slot,COALESCE(item,''),count,simulate,COALESCE(code,'') FROM accesses
			WHERE (?='' OR node_id=?) AND (?='' OR actor=?) ORDER BY tick DESC, seq DESC LIMIT ?`,
			q.NodeID, q.NodeID, q.Actor, q.Actor, q.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r accessRow
			var sim int
			if err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.NodeID, &r.Side, &r.Slot, &r.Item, &r.Count, &sim, &r.Code); err != nil {
				return nil, err
			}
			r.Simulate = sim != 0
			out = append(out, r)
		}
		return out, rows.Err()

	case "nodes":
		rows, err := db.Query(`SELECT node_id,x,y,z,tick,cycle_time_remaining,cycle_duration,current_input,input_json,output_json FROM node_state
			ORDER BY x,y,z LIMIT ?`, q.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r nodeRow
			var in, outJSON string
			if err := rows.Scan(&r.NodeID, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Tick, &r.CycleTimeRemaining, &r.CycleDuration, &r.CurrentInput, &in, &outJSON); err != nil {
				return nil, err
			}
			r.Input, r.Output = json.RawMessage(in), json.RawMessage(outJSON)
			out = append(out, r)
		}
		return out, rows.Err()

	default:
		return nil, fmt.Errorf("unknown query %q (snapshots, cycles, accesses, nodes)", q.Name)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
