package demo

import (
	"fmt"

	"github.com/JeffM2501/EntityNetwork/client"
	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/entity"
	"github.com/JeffM2501/EntityNetwork/logger"
	"github.com/JeffM2501/EntityNetwork/server"
	"github.com/JeffM2501/EntityNetwork/wire"
	"github.com/JeffM2501/EntityNetwork/world"
)

// Result summarizes a demo run for the CLI to print.
type Result struct {
	PeerID           int64
	ClientState      client.State
	TankID           int64
	FlagLocalID      int64
	FlagAcceptedID   int64
	SpawnRPCReceived string
	BroadcastMessage string
}

// Run drives one full lifecycle in-process, pumping frames directly between
// a server.Engine and a client.Engine: admission, self property push, a
// server-authored entity with a delta update, a client-authored entity
// accepted by the server, and one RPC call in each direction.
func Run(protocolHeader string) (*Result, error) {
	serverWorld := BuildWorld()
	srv := server.New(serverWorld, protocolHeader)

	var spawnArg string
	serverWorld.RPCs.Bind("Spawn", func(caller int64, args []descriptor.Property, values []any) {
		if len(values) > 0 {
			spawnArg, _ = values[0].(string)
		}
	})

	clientWorld := world.New()
	cli := client.New(clientWorld)

	var broadcastMsg string
	clientWorld.RPCs.Bind("Broadcast", func(caller int64, args []descriptor.Property, values []any) {
		if len(values) > 0 {
			broadcastMsg, _ = values[0].(string)
		}
	})

	peerID := srv.AddPeer(-1)
	for {
		frame, ok := srv.PopOutbound(peerID)
		if !ok {
			break
		}
		cli.Dispatch(frame)
	}
	logger.Info("demo: admission complete", logger.KeyPeerID, peerID)

	self, ok := cli.Self()
	if !ok {
		return nil, fmt.Errorf("client self controller not bootstrapped after admission")
	}
	if cell, ok := self.CellByName("Name"); ok {
		cell.SetString("Alice")
	}

	cli.Update()
	pumpClientToServer(cli, srv, peerID)
	srv.Update()
	pumpServerToClient(srv, cli, peerID)

	var tank *entity.Instance
	tankInst, err := srv.CreateInstance(0, peerID, func(i *entity.Instance) {
		i.Cell(0).SetVector3([3]float64{1, 2, 3})
		i.Cell(1).SetInt32(100)
	})
	if err != nil {
		return nil, fmt.Errorf("creating Tank: %w", err)
	}
	tank = tankInst
	srv.Update()
	pumpServerToClient(srv, cli, peerID)

	tank.Cell(0).SetVector3([3]float64{1, 2, 4})
	srv.Update()
	pumpServerToClient(srv, cli, peerID)

	flagInst, err := cli.CreateLocalEntity(1, func(i *entity.Instance) {
		i.Cell(0).SetVector3([3]float64{0, 0, 0})
	})
	if err != nil {
		return nil, fmt.Errorf("creating local Flag: %w", err)
	}
	localFlagID := flagInst.ID()
	cli.Update()
	pumpClientToServer(cli, srv, peerID)
	pumpServerToClient(srv, cli, peerID)

	var acceptedFlagID int64 = entity.InvalidID
	clientWorld.Entities.ForEach(func(id int64, inst *entity.Instance) {
		if inst.Desc.Name == "Flag" && id >= 0 {
			acceptedFlagID = id
		}
	})

	if err := cli.CallRPC("Spawn", func(b *wire.Builder) {
		b.WriteString("Tank")
	}); err != nil {
		return nil, err
	}
	cli.Update()
	pumpClientToServer(cli, srv, peerID)

	if err := srv.CallRPC("Broadcast", -1, func(b *wire.Builder) {
		b.WriteString("hello peers")
	}); err != nil {
		return nil, err
	}
	pumpServerToClient(srv, cli, peerID)

	return &Result{
		PeerID:           peerID,
		ClientState:      cli.State(),
		TankID:           tank.ID(),
		FlagLocalID:      localFlagID,
		FlagAcceptedID:   acceptedFlagID,
		SpawnRPCReceived: spawnArg,
		BroadcastMessage: broadcastMsg,
	}, nil
}

func pumpClientToServer(cli *client.Engine, srv *server.Engine, peerID int64) {
	for {
		frame, ok := cli.PopOutbound()
		if !ok {
			break
		}
		srv.Dispatch(peerID, frame)
	}
}

func pumpServerToClient(srv *server.Engine, cli *client.Engine, peerID int64) {
	for {
		frame, ok := srv.PopOutbound(peerID)
		if !ok {
			break
		}
		cli.Dispatch(frame)
	}
}
