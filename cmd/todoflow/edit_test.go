package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"todoflow/application/graph"
	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
)

type mockCanvas struct {
	mock.Mock
}

func (m *mockCanvas) AddNode(title string, pos valueobjects.Position) (entities.TaskNode, error) {
	args := m.Called(title, pos)
	return args.Get(0).(entities.TaskNode), args.Error(1)
}

func (m *mockCanvas) Connect(source, target string) (entities.TaskEdge, error) {
	args := m.Called(source, target)
	return args.Get(0).(entities.TaskEdge), args.Error(1)
}

func (m *mockCanvas) ApplyNodeChanges(changes []graph.NodeChange) ([]entities.TaskNode, error) {
	args := m.Called(changes)
	return nil, args.Error(0)
}

func (m *mockCanvas) ApplyEdgeChanges(changes []graph.EdgeChange) ([]entities.TaskEdge, error) {
	args := m.Called(changes)
	return nil, args.Error(0)
}

func (m *mockCanvas) UpdateNodeData(id string, change graph.DataChange) (entities.TaskNode, error) {
	args := m.Called(id, change)
	return args.Get(0).(entities.TaskNode), args.Error(1)
}

func (m *mockCanvas) Flush(ctx context.Context) error {
	return m.Called().Error(0)
}

func ptr[T any](v T) *T { return &v }

func TestApplyEvent(t *testing.T) {
	node := entities.NewTaskNode("Write docs", valueobjects.Position{X: 1, Y: 2})
	edge := entities.NewTaskEdge("a", "b")

	tests := []struct {
		name    string
		line    string
		setup   func(m *mockCanvas)
		want    any
		wantErr string
	}{
		{
			name:  "add",
			line:  `{"op":"add","title":"Write docs","x":1,"y":2}`,
			setup: func(m *mockCanvas) { m.On("AddNode", "Write docs", valueobjects.Position{X: 1, Y: 2}).Return(node, nil) },
			want:  node,
		},
		{
			name:    "add without title",
			line:    `{"op":"add","x":1}`,
			wantErr: "title is required",
		},
		{
			name:  "connect",
			line:  `{"op":"connect","source":"a","target":"b"}`,
			setup: func(m *mockCanvas) { m.On("Connect", "a", "b").Return(edge, nil) },
			want:  edge,
		},
		{
			name: "node changes",
			line: `{"op":"nodes","changes":[{"type":"position","id":"a","position":{"x":5,"y":6}},{"type":"select","id":"a","selected":true}]}`,
			setup: func(m *mockCanvas) {
				m.On("ApplyNodeChanges", []graph.NodeChange{
					{Type: graph.NodePosition, ID: "a", Position: &valueobjects.Position{X: 5, Y: 6}},
					{Type: graph.NodeSelect, ID: "a", Selected: ptr(true)},
				}).Return(nil)
			},
		},
		{
			name:  "edge changes",
			line:  `{"op":"edges","changes":[{"type":"remove","id":"e1"}]}`,
			setup: func(m *mockCanvas) { m.On("ApplyEdgeChanges", []graph.EdgeChange{{Type: graph.EdgeRemove, ID: "e1"}}).Return(nil) },
		},
		{
			name:    "edge changes missing",
			line:    `{"op":"edges"}`,
			wantErr: "edges:",
		},
		{
			name: "data",
			line: `{"op":"data","id":"a","title":"Renamed","status":"IN_PROGRESS"}`,
			setup: func(m *mockCanvas) {
				m.On("UpdateNodeData", "a", graph.DataChange{Title: ptr("Renamed"), Status: ptr(valueobjects.StatusInProgress)}).Return(node, nil)
			},
			want: node,
		},
		{
			name:    "data with unknown status",
			line:    `{"op":"data","id":"a","status":"LATER"}`,
			wantErr: "unknown task status",
		},
		{
			name:    "data on unknown node",
			line:    `{"op":"data","id":"zzz","title":"x"}`,
			setup:   func(m *mockCanvas) { m.On("UpdateNodeData", "zzz", mock.Anything).Return(entities.TaskNode{}, errors.New("node zzz not found")) },
			wantErr: "not found",
		},
		{
			name:  "flush",
			line:  `{"op":"flush"}`,
			setup: func(m *mockCanvas) { m.On("Flush").Return(nil) },
		},
		{name: "invalid json", line: `{"op":`, wantErr: "not valid JSON"},
		{name: "missing op", line: `{"title":"x"}`, wantErr: `missing "op"`},
		{name: "unknown op", line: `{"op":"paint"}`, wantErr: `unknown op "paint"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			m := new(mockCanvas)
			if tt.setup != nil {
				tt.setup(m)
			}

			// Act
			got, err := applyEvent(context.Background(), m, tt.line)

			// Assert
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				if tt.want != nil {
					assert.Equal(t, tt.want, got)
				} else {
					assert.Nil(t, got)
				}
			}
			m.AssertExpectations(t)
		})
	}
}

func TestPrinter_Emit(t *testing.T) {
	value := map[string]any{"id": "p1", "nodes": []string{"a", "b"}}

	tests := []struct {
		name    string
		printer printer
		want    string
		wantErr bool
	}{
		{name: "human", printer: printer{}, want: "human\n"},
		{name: "json", printer: printer{json: true}, want: `{"id":"p1","nodes":["a","b"]}` + "\n"},
		{name: "field", printer: printer{field: "nodes.#"}, want: "2\n"},
		{name: "missing field", printer: printer{field: "owner"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.printer.out = &buf

			err := tt.printer.emit(value, func(w io.Writer) { _, _ = w.Write([]byte("human\n")) })

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
