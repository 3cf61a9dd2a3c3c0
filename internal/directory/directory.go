// Package directory holds the fixed table of organizational recipients.
//
// Recipients are the routing targets of the internal-request workflow. The
// table is configuration loaded at process start; it is not editable at
// runtime.
package directory

import "strings"

// Recipient is one organizational role a request can be routed to.
type Recipient struct {
	Key            string `json:"key"`
	Label          string `json:"label"`
	SequenceNumber int    `json:"sequenceNumber"` // prefix of the request number
	Email          string `json:"email"`
}

var recipients = []Recipient{
	{Key: "chairman", Label: "رئيس المجلس", SequenceNumber: 1, Email: "chairman@orgdesk.example"},
	{Key: "ceo", Label: "المدير التنفيذي", SequenceNumber: 2, Email: "ceo@orgdesk.example"},
	{Key: "finance", Label: "المالية", SequenceNumber: 3, Email: "finance@orgdesk.example"},
	{Key: "projects", Label: "المشاريع", SequenceNumber: 4, Email: "projects@orgdesk.example"},
	{Key: "maintenance", Label: "الصيانة", SequenceNumber: 5, Email: "maintenance@orgdesk.example"},
	{Key: "hr", Label: "الموارد البشرية", SequenceNumber: 6, Email: "hr@orgdesk.example"},
	{Key: "platforms", Label: "المنصات", SequenceNumber: 7, Email: "platforms@orgdesk.example"},
	{Key: "collector", Label: "المحصل المالي", SequenceNumber: 8, Email: "collector@orgdesk.example"},
	{Key: "secretary", Label: "السكرتارية", SequenceNumber: 9, Email: "secretary@orgdesk.example"},
	{Key: "media_manager", Label: "مدير الإعلام", SequenceNumber: 10, Email: "media@orgdesk.example"},
	{Key: "designer", Label: "المصممة", SequenceNumber: 11, Email: "designer@orgdesk.example"},
	{Key: "supervision_head", Label: "رئيس قسم الإشراف", SequenceNumber: 12, Email: "supervision@orgdesk.example"},
	{Key: "executive_assistant", Label: "مساعدة المدير التنفيذي", SequenceNumber: 13, Email: "exec.assistant@orgdesk.example"},
	{Key: "admin_supervisor", Label: "المشرفة الإدارية", SequenceNumber: 14, Email: "admin.supervisor@orgdesk.example"},
	{Key: "edu_supervisor", Label: "المشرفة التعليمية", SequenceNumber: 15, Email: "edu.supervisor@orgdesk.example"},
	{Key: "athar_center", Label: "مركز أثر", SequenceNumber: 16, Email: "athar@orgdesk.example"},
	{Key: "binaa_center", Label: "مركز بناء", SequenceNumber: 17, Email: "binaa@orgdesk.example"},
}

var byKey = func() map[string]Recipient {
	m := make(map[string]Recipient, len(recipients))
	for _, r := range recipients {
		m[r.Key] = r
	}
	return m
}()

// ByKey looks a recipient up by key. The second return is false when the key
// is unknown; lookups never fail otherwise.
func ByKey(key string) (Recipient, bool) {
	r, ok := byKey[key]
	return r, ok
}

// ByEmail looks a recipient up by contact address, case-insensitively.
func ByEmail(email string) (Recipient, bool) {
	norm := strings.ToLower(strings.TrimSpace(email))
	for _, r := range recipients {
		if strings.ToLower(r.Email) == norm {
			return r, true
		}
	}
	return Recipient{}, false
}

// All returns the recipients in sequence-number order. The slice is a copy.
func All() []Recipient {
	out := make([]Recipient, len(recipients))
	copy(out, recipients)
	return out
}
