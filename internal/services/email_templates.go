package services

// emailLayout is shared by every client mail. Each message template defines
// "title" and "content".
const emailLayout = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            margin: 0;
            padding: 0;
            background-color: #f5f5f5;
        }
        .container {
            max-width: 600px;
            margin: 40px auto;
            background: white;
            border-radius: 8px;
            overflow: hidden;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
        }
        .header {
            background: #1f2937;
            color: white;
            padding: 32px 30px;
            text-align: center;
        }
        .header h1 {
            margin: 0;
            font-size: 24px;
            font-weight: 600;
        }
        .content {
            padding: 32px 30px;
        }
        .content p {
            margin: 0 0 16px 0;
            font-size: 16px;
            color: #4a5568;
        }
        .button-container {
            text-align: center;
            margin: 24px 0;
        }
        .button {
            display: inline-block;
            background: #1f2937;
            color: white;
            padding: 12px 28px;
            text-decoration: none;
            border-radius: 6px;
            font-weight: 600;
        }
        .links li {
            margin-bottom: 8px;
            word-break: break-all;
        }
        .previews img {
            width: 160px;
            height: 160px;
            object-fit: cover;
            border-radius: 4px;
            margin: 4px;
        }
        .footer {
            background: #f8fafc;
            padding: 20px 30px;
            text-align: center;
            font-size: 13px;
            color: #718096;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{template "title" .}}</h1>
        </div>
        <div class="content">
            {{if .ClientName}}<p>Hi {{.ClientName}},</p>{{else}}<p>Hi,</p>{{end}}
            {{template "content" .}}
        </div>
        <div class="footer">
            You received this email because a gallery was shared with this address.
        </div>
    </div>
</body>
</html>{{end}}`

const magicLinkEmailTemplate = `{{define "title"}}{{if .AlbumTitle}}{{.AlbumTitle}}{{else}}Your photos{{end}}{{end}}
{{define "content"}}
            <p>Your gallery is ready to review. Use the button below to open it, no password needed.</p>
            <div class="button-container">
                <a href="{{.Link}}" class="button">Open gallery</a>
            </div>
            <p>Keep this email: the link is personal and works until it expires.</p>
{{end}}
{{template "layout" .}}`

const editedDigestEmailTemplate = `{{define "title"}}Edited photos{{if .AlbumTitle}} in {{.AlbumTitle}}{{end}}{{end}}
{{define "content"}}
            <p>New edited versions of your photos are available.</p>
            {{if eq (len .SessionLinks) 1}}
            <div class="button-container">
                <a href="{{index .SessionLinks 0}}" class="button">View edited photos</a>
            </div>
            {{else}}
            <ul class="links">
                {{range .SessionLinks}}<li><a href="{{.}}">{{.}}</a></li>
                {{end}}
            </ul>
            {{end}}
            {{if .LandingLink}}<p>See all of your galleries at <a href="{{.LandingLink}}">{{.LandingLink}}</a>.</p>{{end}}
{{end}}
{{template "layout" .}}`

const thankYouEmailTemplate = `{{define "title"}}Thank you{{end}}
{{define "content"}}
            <p>We saved your email{{if .AlbumTitle}} for <strong>{{.AlbumTitle}}</strong>{{end}}. We will let you know when edited photos are ready.</p>
            {{if .Previews}}
            <div class="previews">
                {{range .Previews}}<img src="{{.}}" alt="">{{end}}
            </div>
            {{end}}
{{end}}
{{template "layout" .}}`
