package filter

import (
	"testing"
)

var benchMessage = []byte("Subject: =?utf-8?q?Quartalsbericht_f=C3=BCr_Q3?=\r\n" +
	"From: Carol <carol@example.com>\r\n" +
	"To: Bob <bob@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Die Zahlen f=C3=BCr das dritte Quartal sind angeh=C3=A4ngt.\r\n")

func benchmarkDecideMessage(b *testing.B, opts Options) {
	f, err := New(opts)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.DecideMessage(benchMessage)
	}
}

func BenchmarkDecideMessage_Inactive(b *testing.B) {
	benchmarkDecideMessage(b, Options{})
}

func BenchmarkDecideMessage_Header(b *testing.B) {
	benchmarkDecideMessage(b, Options{IncludeHeader: []string{"From:.*@example\\.com"}})
}

func BenchmarkDecideMessage_Body(b *testing.B) {
	benchmarkDecideMessage(b, Options{ExcludeBody: []string{"(?i)unsubscribe", "Quartal"}})
}

func BenchmarkDecide_Raw(b *testing.B) {
	f, err := New(Options{IncludeHeader: []string{"Subject:.*Q3", "To:.*bob"}})
	if err != nil {
		b.Fatal(err)
	}
	header, body := SplitRawMessage(benchMessage)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Decide(header, body)
	}
}
