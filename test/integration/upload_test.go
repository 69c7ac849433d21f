// Package integration contains integration tests for the Parlor server.
package integration

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parlorchat/parlor/internal/protocol"
	"github.com/parlorchat/parlor/test/testhelpers"
)

// recordingStore is a BlobStore stub that records stored payloads and
// returns a fixed outcome.
type recordingStore struct {
	mu        sync.Mutex
	url       string
	err       error
	fileNames []string
}

func (s *recordingStore) Store(_ context.Context, _ []byte, fileName, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileNames = append(s.fileNames, fileName)
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

func (s *recordingStore) storedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fileNames...)
}

func joinLobby(t *testing.T, conn *testhelpers.EventConn) {
	t.Helper()
	conn.Send(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "lobby"})
	conn.ExpectEvent(protocol.EventBotMessage, eventTimeout)
}

func TestUploadAnnouncedToRoom(t *testing.T) {
	store := &recordingStore{url: "https://ucarecdn.com/deadbeef/"}
	_, baseURL := startServer(t, store)
	wsURL := testhelpers.WebSocketURL(t, baseURL)

	aliceToken := testhelpers.Login(t, baseURL, "Alice")
	alice := testhelpers.DialEventConn(t, wsURL, aliceToken, testOrigin)
	defer alice.Close()
	bobToken := testhelpers.Login(t, baseURL, "Bob")
	bob := testhelpers.DialEventConn(t, wsURL, bobToken, testOrigin)
	defer bob.Close()

	joinLobby(t, alice)
	joinLobby(t, bob)
	alice.ExpectEvent(protocol.EventUserJoined, eventTimeout)

	alice.Send(protocol.EventUploadFile, protocol.UploadFile{
		Base64Data:  base64.StdEncoding.EncodeToString([]byte("quarterly numbers")),
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		RoomID:      "lobby",
	})

	// Both members, including the uploader, see the announcement.
	for _, conn := range []*testhelpers.EventConn{alice, bob} {
		uploaded := conn.ExpectEvent(protocol.EventFileUploaded, eventTimeout)
		var out protocol.FileUploaded
		testhelpers.DecodePayload(t, uploaded, &out)
		if out.DisplayName != "Alice" {
			t.Errorf("Expected uploader Alice, got %q", out.DisplayName)
		}
		if out.File.URL != "https://ucarecdn.com/deadbeef/" {
			t.Errorf("Unexpected file URL: %q", out.File.URL)
		}
		if out.File.FileName != "report.pdf" {
			t.Errorf("Unexpected file name: %q", out.File.FileName)
		}
	}

	files := store.storedFiles()
	if len(files) != 1 || files[0] != "report.pdf" {
		t.Errorf("Expected one stored file named report.pdf, got %v", files)
	}
}

func TestUploadFailureReportedToRequesterOnly(t *testing.T) {
	store := &recordingStore{err: errors.New("storage offline")}
	_, baseURL := startServer(t, store)
	wsURL := testhelpers.WebSocketURL(t, baseURL)

	aliceToken := testhelpers.Login(t, baseURL, "Alice")
	alice := testhelpers.DialEventConn(t, wsURL, aliceToken, testOrigin)
	defer alice.Close()
	bobToken := testhelpers.Login(t, baseURL, "Bob")
	bob := testhelpers.DialEventConn(t, wsURL, bobToken, testOrigin)
	defer bob.Close()

	joinLobby(t, alice)
	joinLobby(t, bob)
	alice.ExpectEvent(protocol.EventUserJoined, eventTimeout)

	alice.Send(protocol.EventUploadFile, protocol.UploadFile{
		Base64Data: base64.StdEncoding.EncodeToString([]byte("doomed")),
		FileName:   "doomed.bin",
		RoomID:     "lobby",
	})

	failure := alice.ExpectEvent(protocol.EventUploadError, eventTimeout)
	var message string
	testhelpers.DecodePayload(t, failure, &message)
	if message == "" {
		t.Error("Expected a failure notice for the requester")
	}
	bob.ExpectNoEvent(200 * time.Millisecond)

	// The session survives the failed upload.
	alice.Send(protocol.EventChatMessage, protocol.ChatInbound{RoomID: "lobby", Message: "still here"})
	alice.ExpectEvent(protocol.EventChatMessage, eventTimeout)
}

func TestUploadRequiresRoomMembership(t *testing.T) {
	store := &recordingStore{url: "https://ucarecdn.com/deadbeef/"}
	_, baseURL := startServer(t, store)
	wsURL := testhelpers.WebSocketURL(t, baseURL)

	token := testhelpers.Login(t, baseURL, "Alice")
	conn := testhelpers.DialEventConn(t, wsURL, token, testOrigin)
	defer conn.Close()

	conn.Send(protocol.EventUploadFile, protocol.UploadFile{
		Base64Data: base64.StdEncoding.EncodeToString([]byte("data")),
		FileName:   "file.bin",
		RoomID:     "lobby",
	})

	errEvent := conn.ExpectEvent(protocol.EventErrorMessage, eventTimeout)
	var message string
	testhelpers.DecodePayload(t, errEvent, &message)
	if !strings.Contains(message, `"lobby"`) {
		t.Errorf("Expected the room name in the error, got %q", message)
	}
	if files := store.storedFiles(); len(files) != 0 {
		t.Errorf("Store must not be called without membership, got %v", files)
	}
}
