package scanner

import (
	"regexp"
)

// ServiceFingerprint names the service believed to listen on a port.
type ServiceFingerprint struct {
	Name    string
	Version string
	Product string
}

// UnknownService is returned when neither banner nor port identify a service.
const UnknownService = "Unknown"

// Fingerprinter identifies services from banners and port numbers.
type Fingerprinter struct {
	signatures []signature
}

// signature matches a banner. When version is set it is the submatch index
// holding the version string.
type signature struct {
	pattern *regexp.Regexp
	name    string
	product string
	version int
}

var defaultSignatures = []signature{
	{pattern: regexp.MustCompile(`SSH-(\d+\.\d+)-(\S+)`), name: "SSH", version: 1},
	{pattern: regexp.MustCompile(`(?i)Apache[/ ](\d+\.\d+(?:\.\d+)?)`), name: "HTTP", product: "Apache", version: 1},
	{pattern: regexp.MustCompile(`(?i)nginx[/ ](\d+\.\d+(?:\.\d+)?)`), name: "HTTP", product: "nginx", version: 1},
	{pattern: regexp.MustCompile(`(?i)HTTP/(\d+\.\d+)\s+\d+`), name: "HTTP", version: 1},
	{pattern: regexp.MustCompile(`(\d+\.\d+\.\d+).*MySQL`), name: "MySQL", product: "MySQL", version: 1},
	{pattern: regexp.MustCompile(`PostgreSQL (\d+\.\d+)`), name: "PostgreSQL", product: "PostgreSQL", version: 1},
	{pattern: regexp.MustCompile(`-ERR.*redis|REDIS`), name: "Redis", product: "Redis"},
	{pattern: regexp.MustCompile(`MongoDB|mongod`), name: "MongoDB", product: "MongoDB"},
	{pattern: regexp.MustCompile(`AMQP|RabbitMQ`), name: "AMQP", product: "RabbitMQ"},
	{pattern: regexp.MustCompile(`(?i)^220[- ].*FTP`), name: "FTP"},
	{pattern: regexp.MustCompile(`(?i)^220[- ].*SMTP|ESMTP`), name: "SMTP"},
}

// Well-known port mappings
var portServices = map[uint16]ServiceFingerprint{
	21:    {Name: "FTP"},
	22:    {Name: "SSH"},
	23:    {Name: "Telnet"},
	25:    {Name: "SMTP"},
	53:    {Name: "DNS"},
	80:    {Name: "HTTP"},
	110:   {Name: "POP3"},
	143:   {Name: "IMAP"},
	443:   {Name: "HTTPS"},
	445:   {Name: "SMB"},
	465:   {Name: "SMTPS"},
	587:   {Name: "SMTP Submission"},
	993:   {Name: "IMAPS"},
	995:   {Name: "POP3S"},
	1433:  {Name: "MSSQL"},
	1521:  {Name: "Oracle"},
	3306:  {Name: "MySQL"},
	3389:  {Name: "RDP"},
	5432:  {Name: "PostgreSQL"},
	5672:  {Name: "AMQP", Product: "RabbitMQ"},
	6379:  {Name: "Redis"},
	8080:  {Name: "HTTP-Alt"},
	8443:  {Name: "HTTPS-Alt"},
	9200:  {Name: "Elasticsearch"},
	9300:  {Name: "Elasticsearch-Transport"},
	15672: {Name: "RabbitMQ-Management"},
	27017: {Name: "MongoDB"},
}

// NewFingerprinter creates a new service fingerprinter.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{signatures: defaultSignatures}
}

// Identify attempts to identify a service from the banner first and the port second.
func (f *Fingerprinter) Identify(port uint16, banner string) ServiceFingerprint {
	if banner != "" && banner != NoBannerSentinel {
		for _, sig := range f.signatures {
			m := sig.pattern.FindStringSubmatch(banner)
			if m == nil {
				continue
			}
			fp := ServiceFingerprint{Name: sig.name, Product: sig.product}
			if sig.version > 0 && sig.version < len(m) {
				fp.Version = m[sig.version]
			}
			if sig.name == "SSH" && len(m) > 2 {
				fp.Product = m[2]
			}
			return fp
		}
	}

	if fp, ok := portServices[port]; ok {
		return fp
	}
	return ServiceFingerprint{Name: UnknownService}
}
