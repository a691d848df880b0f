package transport

// ProtocolVersion is the tus protocol version sent on every request.
const ProtocolVersion = "1.0.0"

// Header names of the tus protocol, plus the plain HTTP ones the client reads or sets.
const (
	HeaderTusResumable         = "Tus-Resumable"
	HeaderTusVersion           = "Tus-Version"
	HeaderTusExtension         = "Tus-Extension"
	HeaderTusMaxSize           = "Tus-Max-Size"
	HeaderTusChecksumAlgorithm = "Tus-Checksum-Algorithm"
	HeaderUploadLength         = "Upload-Length"
	HeaderUploadMetadata       = "Upload-Metadata"
	HeaderUploadOffset         = "Upload-Offset"
	HeaderUploadChecksum       = "Upload-Checksum"
	HeaderContentType          = "Content-Type"
	HeaderContentEncoding      = "Content-Encoding"
	HeaderAcceptEncoding       = "Accept-Encoding"
	HeaderLocation             = "Location"
)

// ContentTypeOffsetOctetStream marks a PATCH body as raw bytes starting at Upload-Offset.
const ContentTypeOffsetOctetStream = "application/offset+octet-stream"
