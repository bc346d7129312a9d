// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package mongo implements storage.ObjectStore on top of MongoDB, the
// document store the data model of §3 (insert/find_one/update_one/iter
// over schema-flexible documents with a nested audit array) is shaped
// around.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sage-x-project/sage/pkg/storage"
)

// Store implements storage.ObjectStore against a MongoDB collection of
// Object documents keyed by filename.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Config names the Mongo connection and collection to use.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Connect dials MongoDB, ensures a unique index on filename (mirroring
// the document store's primary lookup key, §3), and returns a ready Store.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "filename", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: ensure filename index: %w", err)
	}

	return &Store{client: client, collection: coll}, nil
}

// Insert adds a new object document, mapping Mongo's duplicate-key error
// to storage.ErrAlreadyExists (§3 "unique-key error maps to
// PermissionDenied"). A soft-deleted document with the same filename is
// replaced in place, since the unique filename index would otherwise
// reject the new document.
func (s *Store) Insert(ctx context.Context, obj *storage.Object) error {
	res, err := s.collection.ReplaceOne(ctx, bson.M{"filename": obj.Filename, "deleted": true}, obj)
	if err != nil {
		return fmt.Errorf("mongo: insert: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	_, err = s.collection.InsertOne(ctx, obj)
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("mongo: insert: %w", err)
	}
	return nil
}

// FindOne retrieves the non-deleted object document for filename.
func (s *Store) FindOne(ctx context.Context, filename string) (*storage.Object, error) {
	var obj storage.Object
	err := s.collection.FindOne(ctx, bson.M{"filename": filename, "deleted": false}).Decode(&obj)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find_one: %w", err)
	}
	return &obj, nil
}

// UpdateOne replaces the stored document for obj.Filename.
func (s *Store) UpdateOne(ctx context.Context, obj *storage.Object) error {
	res, err := s.collection.ReplaceOne(ctx, bson.M{"filename": obj.Filename}, obj)
	if err != nil {
		return fmt.Errorf("mongo: update_one: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Iter streams every non-deleted object document to fn, in whatever
// order the underlying cursor returns them.
func (s *Store) Iter(ctx context.Context, fn func(*storage.Object) error) error {
	cursor, err := s.collection.Find(ctx, bson.M{"deleted": false})
	if err != nil {
		return fmt.Errorf("mongo: iter find: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var obj storage.Object
		if err := cursor.Decode(&obj); err != nil {
			return fmt.Errorf("mongo: iter decode: %w", err)
		}
		if err := fn(&obj); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// Close disconnects the underlying Mongo client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity to the Mongo deployment.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
