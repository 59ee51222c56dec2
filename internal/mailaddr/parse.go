// Package mailaddr derives the domain hierarchy of an email address.
//
// Parse is the only place in the module that decides whether an address
// belongs to a registrable ("primary") domain directly or through a
// subdomain. It is pure and never fails: malformed input yields empty or
// degenerate parts which callers must reject themselves (see Valid).
package mailaddr

import "strings"

// Parts is the result of Parse.
type Parts struct {
	// FullDomain is everything after the last '@', lower-cased.
	FullDomain string
	// PrimaryDomain is the registrable domain, aware of compound TLDs
	// such as co.uk or com.au.
	PrimaryDomain string
	// HasSubdomain reports FullDomain != PrimaryDomain.
	HasSubdomain bool
}

// compoundTLDs lists second-level public suffixes that count as one label
// when computing the primary domain.
var compoundTLDs = map[string]struct{}{
	"co.in": {}, "net.in": {}, "org.in": {}, "gov.in": {}, "ac.in": {}, "edu.in": {}, "res.in": {},
	"co.uk": {}, "org.uk": {}, "me.uk": {}, "ltd.uk": {}, "plc.uk": {}, "ac.uk": {}, "gov.uk": {}, "net.uk": {},
	"com.au": {}, "net.au": {}, "org.au": {}, "edu.au": {}, "gov.au": {}, "asn.au": {}, "id.au": {},
	"co.nz": {}, "org.nz": {}, "net.nz": {}, "govt.nz": {}, "ac.nz": {},
	"co.za": {}, "org.za": {}, "gov.za": {},
	"com.br": {}, "net.br": {}, "org.br": {}, "gov.br": {},
	"com.sg": {}, "edu.sg": {}, "gov.sg": {},
	"co.jp": {}, "ne.jp": {}, "or.jp": {}, "ac.jp": {},
	"co.kr": {}, "or.kr": {},
	"com.cn": {}, "net.cn": {}, "org.cn": {},
	"com.mx": {}, "com.ar": {}, "com.tr": {}, "com.hk": {}, "com.tw": {}, "com.my": {},
	"co.id": {}, "co.il": {}, "co.th": {},
}

// IsCompoundTLD reports whether suffix (e.g. "co.uk") is on the compound
// TLD allow-list.
func IsCompoundTLD(suffix string) bool {
	_, ok := compoundTLDs[strings.ToLower(suffix)]
	return ok
}

// Parse splits email into its full and primary domain.
//
//	Parse("noreply@custcomm.icicibank.com") // {custcomm.icicibank.com icicibank.com true}
//	Parse("a@shop.example.co.uk")           // {shop.example.co.uk example.co.uk true}
//	Parse("not-an-address")                 // {"" "" false}
func Parse(email string) Parts {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return Parts{}
	}
	full := strings.Trim(strings.ToLower(strings.TrimSpace(email[at+1:])), ".")
	if full == "" {
		return Parts{}
	}
	primary := PrimaryOf(full)
	return Parts{
		FullDomain:    full,
		PrimaryDomain: primary,
		HasSubdomain:  full != primary,
	}
}

// ParseDomain is Parse for a bare domain name.
func ParseDomain(domain string) Parts {
	return Parse("@" + domain)
}

// PrimaryOf returns the primary domain of a lower-cased domain name.
func PrimaryOf(domain string) string {
	labels := strings.Split(domain, ".")
	n := len(labels)
	if n <= 2 {
		return domain
	}
	if IsCompoundTLD(labels[n-2] + "." + labels[n-1]) {
		return strings.Join(labels[n-3:], ".")
	}
	return strings.Join(labels[n-2:], ".")
}

// Normalize trims and lower-cases an address. Rules match addresses
// case-insensitively, so every stored key goes through here.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Valid reports whether email looks like local@domain.tld: exactly one '@',
// a non-empty local part, at least two domain labels and no empty label.
func Valid(email string) bool {
	email = strings.TrimSpace(email)
	if strings.Count(email, "@") != 1 || strings.ContainsAny(email, " \t\r\n<>") {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at == 0 {
		return false
	}
	return ValidDomain(email[at+1:])
}

// ValidDomain reports whether domain has at least two non-empty labels.
func ValidDomain(domain string) bool {
	domain = strings.TrimSpace(domain)
	if domain == "" || strings.ContainsAny(domain, "@ \t\r\n<>") {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" {
			return false
		}
	}
	return true
}
