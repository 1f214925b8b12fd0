package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Name is an event name from the closed catalog.
type Name string

const (
	TabActivated         Name = "tab:activated"
	TabDeactivated       Name = "tab:deactivated"
	SearchSubmitted      Name = "search:submitted"
	SearchCleared        Name = "search:cleared"
	SearchResultsUpdated Name = "search:results-updated"
	FilterApplied        Name = "filter:applied"
	FilterRemoved        Name = "filter:removed"
	FilterClearedAll     Name = "filter:cleared-all"
	SelectionChanged     Name = "selection:changed"
	SelectionCleared     Name = "selection:cleared"
	NavigationFolderOpen Name = "navigation:folder-opened"
	FileSelected         Name = "file:selected"
	FileOpened           Name = "file:opened"
	FileUploaded         Name = "file:uploaded"
	HubSelected          Name = "hub:selected"
	BulkActionTriggered  Name = "bulk-action:triggered"
	BulkActionCompleted  Name = "bulk-action:completed"
	NotificationShow     Name = "notification:show"
)

// ErrUnknownEvent is returned when a name is not part of the catalog.
var ErrUnknownEvent = errors.New("unknown event")

// Payload is implemented only by the payload types in this file.
// EventName binds each payload type to exactly one catalog name.
type Payload interface {
	EventName() Name
	sealed()
}

// TabActivatedPayload is published when a tab module is mounted and shown.
type TabActivatedPayload struct {
	TabID         string `json:"tabId"`
	PreviousTabID string `json:"previousTabId,omitempty"`
}

// TabDeactivatedPayload is published when a tab module is unmounted.
type TabDeactivatedPayload struct {
	TabID string `json:"tabId"`
}

// SearchSubmittedPayload carries a submitted search query.
type SearchSubmittedPayload struct {
	Query string `json:"query"`
	Scope string `json:"scope,omitempty"`
}

// SearchClearedPayload is published when the search box is emptied.
type SearchClearedPayload struct {
	Scope string `json:"scope,omitempty"`
}

// SearchResultsUpdatedPayload reports the result count for a query.
type SearchResultsUpdatedPayload struct {
	Query      string `json:"query"`
	TotalCount int    `json:"totalCount"`
}

// FilterAppliedPayload describes a filter added to the current view.
type FilterAppliedPayload struct {
	FilterID string   `json:"filterId"`
	Field    string   `json:"field"`
	Values   []string `json:"values"`
}

// FilterRemovedPayload names a filter taken off the current view.
type FilterRemovedPayload struct {
	FilterID string `json:"filterId"`
}

// FilterClearedAllPayload reports how many filters were cleared at once.
type FilterClearedAllPayload struct {
	Count int `json:"count"`
}

// SelectionChangedPayload lists the currently selected item ids.
type SelectionChangedPayload struct {
	SelectedIDs []string `json:"selectedIds"`
	Source      string   `json:"source,omitempty"`
}

// SelectionClearedPayload is published when the selection is emptied.
type SelectionClearedPayload struct {
	PreviousCount int `json:"previousCount"`
}

// NavigationFolderOpenedPayload identifies the folder the user navigated into.
type NavigationFolderOpenedPayload struct {
	FolderID   string `json:"folderId"`
	FolderPath string `json:"folderPath"`
}

// FileSelectedPayload identifies a file picked in a listing.
type FileSelectedPayload struct {
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOpenedPayload identifies a file opened for viewing.
type FileOpenedPayload struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType,omitempty"`
}

// FileUploadedPayload describes a completed upload.
type FileUploadedPayload struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FolderID string `json:"folderId,omitempty"`
	Size     int64  `json:"size"`
}

// HubSelectedPayload identifies the hub switched to.
type HubSelectedPayload struct {
	HubID   string `json:"hubId"`
	HubName string `json:"hubName"`
}

// BulkActionTriggeredPayload starts an action over several items.
type BulkActionTriggeredPayload struct {
	Action  string   `json:"action"`
	ItemIDs []string `json:"itemIds"`
}

// BulkActionCompletedPayload reports the outcome of a bulk action.
type BulkActionCompletedPayload struct {
	Action       string   `json:"action"`
	SuccessCount int      `json:"successCount"`
	FailedIDs    []string `json:"failedIds,omitempty"`
}

// Severity of a user notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationShowPayload asks the shell to show a user notification.
type NotificationShowPayload struct {
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (TabActivatedPayload) EventName() Name           { return TabActivated }
func (TabDeactivatedPayload) EventName() Name         { return TabDeactivated }
func (SearchSubmittedPayload) EventName() Name        { return SearchSubmitted }
func (SearchClearedPayload) EventName() Name          { return SearchCleared }
func (SearchResultsUpdatedPayload) EventName() Name   { return SearchResultsUpdated }
func (FilterAppliedPayload) EventName() Name          { return FilterApplied }
func (FilterRemovedPayload) EventName() Name          { return FilterRemoved }
func (FilterClearedAllPayload) EventName() Name       { return FilterClearedAll }
func (SelectionChangedPayload) EventName() Name       { return SelectionChanged }
func (SelectionClearedPayload) EventName() Name       { return SelectionCleared }
func (NavigationFolderOpenedPayload) EventName() Name { return NavigationFolderOpen }
func (FileSelectedPayload) EventName() Name           { return FileSelected }
func (FileOpenedPayload) EventName() Name             { return FileOpened }
func (FileUploadedPayload) EventName() Name           { return FileUploaded }
func (HubSelectedPayload) EventName() Name            { return HubSelected }
func (BulkActionTriggeredPayload) EventName() Name    { return BulkActionTriggered }
func (BulkActionCompletedPayload) EventName() Name    { return BulkActionCompleted }
func (NotificationShowPayload) EventName() Name       { return NotificationShow }

func (TabActivatedPayload) sealed()           {}
func (TabDeactivatedPayload) sealed()         {}
func (SearchSubmittedPayload) sealed()        {}
func (SearchClearedPayload) sealed()          {}
func (SearchResultsUpdatedPayload) sealed()   {}
func (FilterAppliedPayload) sealed()          {}
func (FilterRemovedPayload) sealed()          {}
func (FilterClearedAllPayload) sealed()       {}
func (SelectionChangedPayload) sealed()       {}
func (SelectionClearedPayload) sealed()       {}
func (NavigationFolderOpenedPayload) sealed() {}
func (FileSelectedPayload) sealed()           {}
func (FileOpenedPayload) sealed()             {}
func (FileUploadedPayload) sealed()           {}
func (HubSelectedPayload) sealed()            {}
func (BulkActionTriggeredPayload) sealed()    {}
func (BulkActionCompletedPayload) sealed()    {}
func (NotificationShowPayload) sealed()       {}

// decoders maps each catalog name to a JSON decoder for its payload type.
var decoders = map[Name]func([]byte) (Payload, error){
	TabActivated:         decodeAs[TabActivatedPayload],
	TabDeactivated:       decodeAs[TabDeactivatedPayload],
	SearchSubmitted:      decodeAs[SearchSubmittedPayload],
	SearchCleared:        decodeAs[SearchClearedPayload],
	SearchResultsUpdated: decodeAs[SearchResultsUpdatedPayload],
	FilterApplied:        decodeAs[FilterAppliedPayload],
	FilterRemoved:        decodeAs[FilterRemovedPayload],
	FilterClearedAll:     decodeAs[FilterClearedAllPayload],
	SelectionChanged:     decodeAs[SelectionChangedPayload],
	SelectionCleared:     decodeAs[SelectionClearedPayload],
	NavigationFolderOpen: decodeAs[NavigationFolderOpenedPayload],
	FileSelected:         decodeAs[FileSelectedPayload],
	FileOpened:           decodeAs[FileOpenedPayload],
	FileUploaded:         decodeAs[FileUploadedPayload],
	HubSelected:          decodeAs[HubSelectedPayload],
	BulkActionTriggered:  decodeAs[BulkActionTriggeredPayload],
	BulkActionCompleted:  decodeAs[BulkActionCompletedPayload],
	NotificationShow:     decodeAs[NotificationShowPayload],
}

func decodeAs[P Payload](data []byte) (Payload, error) {
	var p P
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode decodes a JSON payload for the named event.
// An empty body decodes to the zero payload.
func Decode(name Name, data []byte) (Payload, error) {
	dec, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	p, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", name, err)
	}
	return p, nil
}

// Known reports whether name is part of the catalog.
func Known(name Name) bool {
	_, ok := decoders[name]
	return ok
}

// Names returns the catalog sorted by name.
func Names() []Name {
	names := make([]Name, 0, len(decoders))
	for n := range decoders {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
