package mpc

import (
	"context"
	"sort"

	"github.com/notargets/DGMPC/comm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// SlaveQuery asks the master ranks for the masters of a slave located at
// Point.
type SlaveQuery struct {
	Slave int64 // global scalar dof
	Point r3.Vec
}

// MasterCandidate is the constraint a master rank proposes for a slave.
type MasterCandidate struct {
	Masters      []int64
	Coefficients []float64
	Owners       []int
}

// MasterLocator proposes masters for a point, reporting false when the
// point is not near any local master.
type MasterLocator func(p r3.Vec) (MasterCandidate, bool)

type locateReply struct {
	Slave     int64
	Candidate MasterCandidate
}

// LocateRemoteMasters collectively resolves slave queries on remote master
// ranks. comms are the communicators of CreateNeighborhoodComms: queries
// travel slave -> master over comms[0] to every master rank, and each master
// rank answers the ones locate accepts over comms[1]. When several ranks
// answer the same slave, the lowest rank wins. Slaves nobody answers are
// missing from the result.
func LocateRemoteMasters(ctx context.Context, comms [2]*comm.DistGraph, queries []SlaveQuery,
	locate MasterLocator) (map[int64]MasterCandidate, error) {

	forward, reverse := comms[0], comms[1]
	send := make([][]SlaveQuery, len(forward.Destinations()))
	for k := range send {
		send[k] = queries
	}
	received, err := comm.NeighborAllToAll(ctx, forward, send)
	if err != nil {
		return nil, errors.WithMessage(err, "sending slave queries")
	}

	var (
		dests   = reverse.Destinations()
		replies = make([][]locateReply, len(dests))
		destPos = make(map[int]int, len(dests))
	)
	for k, r := range dests {
		destPos[r] = k
	}
	for _, msg := range received {
		k, ok := destPos[msg.Source]
		if !ok {
			return nil, errors.Errorf("rank %d sent queries but is not a reverse destination", msg.Source)
		}
		for _, q := range msg.Data {
			if cand, found := locate(q.Point); found {
				replies[k] = append(replies[k], locateReply{Slave: q.Slave, Candidate: cand})
			}
		}
	}
	answers, err := comm.NeighborAllToAll(ctx, reverse, replies)
	if err != nil {
		return nil, errors.WithMessage(err, "returning master candidates")
	}

	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Source < answers[j].Source })
	out := make(map[int64]MasterCandidate)
	for _, msg := range answers {
		for _, r := range msg.Data {
			if _, ok := out[r.Slave]; !ok {
				out[r.Slave] = r.Candidate
			}
		}
	}
	log.WithFields(log.Fields{
		"queries":  len(queries),
		"resolved": len(out),
	}).Debug("located remote masters")
	return out, nil
}
