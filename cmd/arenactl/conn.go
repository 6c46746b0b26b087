package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/goldarena/internal/gameserver/arenav1"
	"github.com/cory-johannsen/goldarena/internal/token"
	"github.com/cory-johannsen/goldarena/internal/wallet"
)

// session is an open connection to arenad.
type session struct {
	conn   *grpc.ClientConn
	client *arenav1.Client
}

func dial() (*session, error) {
	conn, err := grpc.NewClient(flagAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", flagAddr, err)
	}
	return &session{conn: conn, client: arenav1.NewClient(conn)}, nil
}

func (s *session) Close() error { return s.conn.Close() }

// loadKey reads the keypair named by --key.
func loadKey() (wallet.Keypair, error) {
	if flagKey == "" {
		return wallet.Keypair{}, fmt.Errorf("--key is required for this command")
	}
	return wallet.Load(flagKey)
}

// signedCall signs fields with the --key keypair and invokes method.
func signedCall(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	key, err := loadKey()
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if err := arenav1.Sign(method, req, key); err != nil {
		return nil, err
	}
	return call(ctx, method, req)
}

func call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	s, err := dial()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()
	return s.client.Call(ctx, method, req)
}

// readMetadata decodes a YAML file holding name, symbol, uri and mutable.
func readMetadata(path string) (token.MetadataParams, error) {
	md := token.MetadataParams{Mutable: true}
	data, err := os.ReadFile(path)
	if err != nil {
		return md, fmt.Errorf("reading metadata %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("parsing metadata %s: %w", path, err)
	}
	if err := md.Validate(); err != nil {
		return md, err
	}
	return md, nil
}

// printStruct writes the response fields one per line in key order.
func printStruct(msg *structpb.Struct) {
	fields := msg.AsMap()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-15s %v\n", k+":", fields[k])
	}
}
