package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,cycles,raw_json) VALUES(?,?,?,?)`)
	insertCycle, _ := s.db.Prepare(`INSERT OR REPLACE INTO cycles(tick,seq,node_id,x,y,z,phase,input,duration,rewards_json,inserts,dropped,no_recipe) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertAccess, _ := s.db.Prepare(`INSERT OR REPLACE INTO accesses(tick,seq,actor,action,node_id,x,y,z,side,slot,item,count,simulate,code,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,nodes,running_nodes) VALUES(?,?,?,?,?)`)
	clearNodeState, _ := s.db.Prepare(`DELETE FROM node_state`)
	insertNodeState, _ := s.db.Prepare(`INSERT OR REPLACE INTO node_state(node_id,x,y,z,tick,cycle_time_remaining,cycle_duration,current_input,input_json,output_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCycle, insertAccess, insertSnapshot, clearNodeState, insertNodeState} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if !exec(insertTick, int64(r.tick.Tick), r.tick.Digest, len(r.tick.Cycles), string(b)) {
				continue
			}
			for i, c := range r.tick.Cycles {
				rewards, _ := json.Marshal(c.Rewards)
				if !exec(insertCycle,
					int64(r.tick.Tick), i, c.NodeID,
					c.Pos[0], c.Pos[1], c.Pos[2],
					c.Phase, c.Input, c.Duration, string(rewards),
					c.Inserts, c.Dropped, boolInt(c.NoRecipe),
				) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAccess,
				int64(a.Tick), seq, a.Actor, a.Action, a.NodeID,
				a.Pos[0], a.Pos[1], a.Pos[2],
				a.Side, a.Slot, a.Item, a.Count, boolInt(a.Simulate), a.Code,
				string(raw),
			)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Nodes, sn.RunningNodes)

		case reqSnapshotState:
			snap := r.state
			if !exec(clearNodeState) {
				continue
			}
			for _, n := range snap.Nodes {
				in, _ := json.Marshal(n.InputHandler)
				out, _ := json.Marshal(n.OutputHandler)
				if !exec(insertNodeState,
					n.ID, n.Pos[0], n.Pos[1], n.Pos[2], int64(snap.Header.Tick),
					n.CycleTimeRemaining, n.CycleDuration, n.CurrentInput,
					string(in), string(out),
				) {
					break
				}
			}
		}
		flushIfNeeded()
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
